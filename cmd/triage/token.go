package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Veolinan/triage/internal/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Server.JWTSecret == "" {
			return errors.New("server.jwt_secret (or TRIAGE_JWT_SECRET) is required")
		}
		operator, _ := cmd.Flags().GetString("operator")
		name, _ := cmd.Flags().GetString("name")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := auth.NewAuthenticator(cfg.Server.JWTSecret).Issue(operator, name, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("operator", "", "Operator ID carried as the token subject")
	tokenCmd.Flags().String("name", "", "Operator display name")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("operator")
}
