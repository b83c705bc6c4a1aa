package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"paycore/config"
	"paycore/internal/auth"
	"paycore/internal/domain"
)

func tokenCmd() *cobra.Command {
	var (
		userID uint
		email  string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with JWT_ACCESS_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToUpper(role)
			if role != domain.RoleCustomer && role != domain.RoleAdmin {
				return fmt.Errorf("role must be %s or %s", domain.RoleCustomer, domain.RoleAdmin)
			}
			cfg := config.Load()
			tok, err := auth.GenerateAccessToken(&cfg.JWT, userID, email, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().UintVarP(&userID, "user", "u", 1, "User id")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email claim")
	cmd.Flags().StringVarP(&role, "role", "r", domain.RoleCustomer, "CUSTOMER or ADMIN")
	return cmd
}
