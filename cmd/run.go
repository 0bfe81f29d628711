// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dvmarkelov/onboard-cli/internal/browser"
	"github.com/dvmarkelov/onboard-cli/internal/config"
	"github.com/dvmarkelov/onboard-cli/internal/healthcheck"
	"github.com/dvmarkelov/onboard-cli/internal/login"
	"github.com/dvmarkelov/onboard-cli/internal/mail"
	"github.com/dvmarkelov/onboard-cli/internal/observability"
	"github.com/dvmarkelov/onboard-cli/internal/orchestrator"
	"github.com/dvmarkelov/onboard-cli/internal/proxyauth"
	"github.com/dvmarkelov/onboard-cli/internal/store"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Processes the account spreadsheet and logs every pending account in",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// values override the config file and environment.
			if err := viper.BindPFlag("store.source_path", cmd.Flags().Lookup("accounts")); err != nil {
				return err
			}
			if err := viper.BindPFlag("store.target_path", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("proxy.host", cmd.Flags().Lookup("proxy-host")); err != nil {
				return err
			}
			if err := viper.BindPFlag("proxy.port", cmd.Flags().Lookup("proxy-port")); err != nil {
				return err
			}
			return viper.BindPFlag("proxy.username", cmd.Flags().Lookup("proxy-user"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from Execute (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			accounts, err := store.Open(cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open account store: %w", err)
			}
			defer accounts.Close()

			creds := proxyauth.Credentials{
				Host:     cfg.Proxy.Host,
				Port:     cfg.Proxy.Port,
				Username: cfg.Proxy.Username,
				Password: cfg.Proxy.Password,
				Scheme:   cfg.Proxy.Scheme,
			}
			factory := browser.NewFactory(cfg.Browser, creds, logger)
			checker := healthcheck.New(cfg.Proxy, cfg.Login, logger)
			extractor := mail.NewExtractor(cfg.Mail, logger)
			flow := login.New(cfg.Login, extractor, logger)

			o := orchestrator.New(
				accounts,
				orchestrator.NewBrowserSessionFactory(factory, logger),
				checker,
				flow,
				logger,
			)

			summary, err := o.Run(ctx)
			if err != nil {
				return err
			}

			logger.Info("Run finished",
				zap.Int("total", summary.Total),
				zap.Int("skipped", summary.Skipped),
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("failed", summary.Failed))

			if summary.Failed > 0 && summary.Succeeded == 0 && summary.Skipped < summary.Total {
				return fmt.Errorf("all %d pending accounts failed", summary.Failed)
			}
			return nil
		},
	}

	runCmd.Flags().String("accounts", "", "path to the source account spreadsheet (xlsx)")
	runCmd.Flags().String("output", "", "path the updated spreadsheet is written to (xlsx)")
	runCmd.Flags().Bool("headless", false, "run the browser without a visible window")
	runCmd.Flags().String("proxy-host", "", "outbound proxy host")
	runCmd.Flags().Int("proxy-port", 0, "outbound proxy port")
	runCmd.Flags().String("proxy-user", "", "outbound proxy username (password via ONBOARD_PROXY_PASSWORD)")

	return runCmd
}
