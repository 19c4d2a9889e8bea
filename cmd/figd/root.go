package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	figd "github.com/Paranoid-AF/figd"
)

var (
	flagConfig  string
	flagSocket  string
	flagVerbose bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "figd",
		Short:         "Shell command prediction daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path (default "+figd.ConfigPath()+")")
	root.PersistentFlags().StringVar(&flagSocket, "socket", "", "daemon socket path (default "+figd.SocketPath()+")")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log every request and response")

	root.AddCommand(
		newServeCmd(),
		newPredictCmd(),
		newRecordCmd(),
		newContextCmd(),
		newToggleGhostCmd(),
		newLearningCmd(),
		newConfigCmd(),
	)
	return root
}

func socketPath() string {
	if flagSocket != "" {
		return flagSocket
	}
	return figd.SocketPath()
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}
