package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/hooky/internal/access"
	"github.com/mattjoyce/hooky/internal/auth"
	"github.com/mattjoyce/hooky/internal/log"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var (
	userEmail    string
	userPassword string

	userAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := c.Context()

			db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log.WithComponent("storage"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close() //nolint:errcheck

			users := auth.NewUsers(db, store.New(), auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), log.WithComponent("auth"))
			u, err := users.Register(ctx, userEmail, userPassword)
			var aerr *access.Error
			if errors.As(err, &aerr) {
				return errors.New(aerr.Message)
			}
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Fprintf(c.OutOrStdout(), "Created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
)

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "account password (at least 8 characters)")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userAddCmd)
}
