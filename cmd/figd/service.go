package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	figd "github.com/Paranoid-AF/figd"
	"github.com/Paranoid-AF/figd/serve"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := figd.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			for _, warning := range figd.ValidateConfig(cfg) {
				logger.Warn("config", zap.String("warning", warning))
			}

			engine, err := serve.NewEngine(cfg, figd.HistoryLogPath(), logger)
			if err != nil {
				return err
			}

			sock := socketPath()
			srv, err := serve.NewServer(sock, flagConfig, engine, logger)
			if err != nil {
				engine.Close()
				return err
			}
			logger.Info("ready", zap.String("socket", sock))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			go func() {
				for sig := range sigCh {
					if sig == syscall.SIGHUP {
						cfg, err := figd.LoadConfig(flagConfig)
						if err != nil {
							logger.Warn("config reload failed", zap.Error(err))
							continue
						}
						engine.Reload(cfg)
						continue
					}
					logger.Info("shutting down", zap.String("signal", sig.String()))
					srv.Close()
					return
				}
			}()

			return srv.Serve()
		},
	}
}
