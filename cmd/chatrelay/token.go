package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/chatrelay/internal/auth"
)

func tokenCmd() *cobra.Command {
	var (
		subject   string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an admin JWT for the management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
				return fmt.Errorf("auth.jwt_secret is not set; the management API is unauthenticated")
			}
			if expiresIn <= 0 {
				expiresIn = cfg.Auth.ExpiresIn()
			}
			token, expiresAt, err := auth.GenerateToken(subject, cfg.Auth.JWTSecret, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime (default: auth.jwt_expires_in)")
	return cmd
}
