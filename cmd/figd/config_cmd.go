package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	figd "github.com/Paranoid-AF/figd"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the daemon configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := figd.LoadConfig(flagConfig)
				if err != nil {
					return err
				}
				return printJSON(cfg)
			},
		},
		&cobra.Command{
			Use:   "reload",
			Short: "Ask the running daemon to reload its configuration",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return roundTrip(&figd.Request{
					Type:   figd.TypeConfig,
					Action: "reload",
				})
			},
		},
		&cobra.Command{
			Use:   "defaults",
			Short: "Print the built-in default configuration",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return printJSON(figd.DefaultConfig())
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration for problems",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				cfg, err := figd.LoadConfig(flagConfig)
				if err != nil {
					return err
				}
				warnings := figd.ValidateConfig(cfg)
				if len(warnings) == 0 {
					fmt.Println("ok")
					return nil
				}
				for _, w := range warnings {
					fmt.Println("warning:", w)
				}
				return nil
			},
		},
	)
	return cmd
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
