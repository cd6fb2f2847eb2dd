package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
)

// NewTokenCmd issues a host token for local runs and smoke tests.
func NewTokenCmd(configPath *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "token HOST_ID",
		Short: "Issue a host token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth secret not configured")
			}
			tokens := auth.NewJWTService(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))
			token, err := tokens.Generate(args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name embedded in the token")
	return cmd
}
