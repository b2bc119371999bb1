package main

import (
	"fmt"

	"github.com/spf13/cobra"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for an operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")
		role, _ := cmd.Flags().GetString("role")
		if sub == "" {
			return fmt.Errorf("--sub is required")
		}
		if _, ok := rbac.RolePermissions[role]; !ok {
			return fmt.Errorf("unknown role %q", role)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		tok, err := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL).IssueJWT(sub, role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("sub", "", "Token subject")
	tokenCmd.Flags().String("role", rbac.RoleProctor, "Role: admin|proctor")
}
