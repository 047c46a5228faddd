package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/DurbeKK/maid-tg-bot/internal/auth"
	"github.com/DurbeKK/maid-tg-bot/internal/config"
)

// newTokenCommand issues tokens for the chat front-end and for operators.
func newTokenCommand(envFile *string) *cobra.Command {
	var (
		userID    string
		name      string
		tokenType string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if cfg.TokenSecret == "" {
				return errors.New("TOKEN_AUTH_SECRET is required")
			}
			auth.TokenSecretKey = cfg.TokenSecret

			typ := auth.TokenType(tokenType)
			if typ != auth.TokenTypeUser && typ != auth.TokenTypeAdmin {
				return errors.Errorf("unknown token type %q", tokenType)
			}

			token, err := auth.GenerateToken(userID, name, typ, ttl)
			if err != nil {
				return errors.Wrap(err, "generate token")
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&tokenType, "type", string(auth.TokenTypeUser), "token type (user|admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
