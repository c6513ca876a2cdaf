package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/actor"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with actor tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a bearer token for a user and role",
	Long: `Sign an HS256 bearer token with auth.jwt_secret. The token carries the
user id as subject and the marketplace role as the role claim.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is not configured")
		}
		role, err := domain.ParseRole(tokenRole)
		if err != nil {
			return err
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}
		if ttl <= 0 {
			ttl = time.Hour
		}

		tokens := actor.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		token, err := tokens.Issue(actor.Identity{ID: tokenUser, Role: string(role)}, ttl)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", "", "household, organization, collector, recycler or admin (required)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	_ = tokenIssueCmd.MarkFlagRequired("role")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}
