package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tedxreg/registration/config"
	"github.com/tedxreg/registration/internal/auth"
	"github.com/tedxreg/registration/internal/payment"
)

// secretFrom prefers the --secret flag and falls back to the config file.
func secretFrom(cmd *cobra.Command, pick func(*config.Config) string) (string, error) {
	if v, _ := cmd.Flags().GetString("secret"); v != "" {
		return v, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return pick(cfg), nil
}

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [email]",
		Short: "Issue a session token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := secretFrom(cmd, func(c *config.Config) string { return c.Auth.SessionSecret })
			if err != nil {
				return err
			}
			token, err := auth.NewSessions(secret).Issue(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "session role, e.g. ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().String("secret", "", "session secret (defaults to config)")
	return cmd
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [order-id] [payment-id]",
		Short: "Compute the checkout callback signature for a test payment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := secretFrom(cmd, func(c *config.Config) string { return c.Razorpay.KeySecret })
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payment.Sign(secret, args[0], args[1]))
			return nil
		},
	}
	cmd.Flags().String("secret", "", "razorpay key secret (defaults to config)")
	return cmd
}
