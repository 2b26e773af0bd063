package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"apex-client/internal/stream"
)

func newTailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail <run-id>",
		Short: "Stream an agent run's events to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens, err := tokenProvider(cfg)
			if err != nil {
				return err
			}

			done := make(chan error, 1)
			var fatal error

			conn := stream.Connect(args[0], tokens, stream.Callbacks{
				OnMessage: func(data string) {
					fmt.Fprintln(cmd.OutOrStdout(), data)
				},
				OnError: func(err error) {
					fmt.Fprintln(cmd.ErrOrStderr(), "stream:", err)
					var se *stream.Error
					if errors.As(err, &se) && !se.Class.Retryable() {
						fatal = err
					}
				},
				OnClose: func() {
					done <- fatal
				},
			}, stream.Options{
				BaseURL:           cfg.BaseURL + "/api",
				MaxRetries:        cfg.StreamMaxRetries,
				BaseDelay:         cfg.StreamBaseDelay,
				MaxDelay:          cfg.StreamMaxDelay,
				StabilityWindow:   cfg.StreamStabilityWindow,
				HeartbeatTimeout:  cfg.StreamHeartbeatTimeout,
				HeartbeatInterval: cfg.StreamHeartbeatInterval,
			})

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case <-sig:
				conn.Cancel()
				return nil
			case err := <-done:
				return err
			}
		},
	}
}
