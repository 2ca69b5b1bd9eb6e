package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skypro1111/speechcoach/internal/remote"
)

func newProfileCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the account behind the configured token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			logger, closeLog := initLogger(cfg.Logging)
			defer closeLog()

			rc, err := remote.NewClient(remote.Config{
				BaseURL:   cfg.API.BaseURL,
				Timeout:   cfg.API.GetTimeoutDuration(),
				UserAgent: serviceName + "/" + serviceVersion,
			}, logger)
			if err != nil {
				return err
			}

			profile, err := rc.Profile(cmd.Context(), credentials(cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", profile.Username, profile.Email)
			return nil
		},
	}
}
