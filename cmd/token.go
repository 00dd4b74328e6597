package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/momo-collections/internal/auth"
)

var (
	tokenUserID string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for local testing",
	Long:  `Sign an access token for the given user id with the configured JWT secret.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Security.AccessTokenDuration
		}

		token, err := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, ttl).GenerateAccessToken(tokenUserID)
		if err != nil {
			log.Fatalf("failed to sign token: %v", err)
		}

		fmt.Println(token)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "pat-1", "User (payer) id to put in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default: security.access_token_duration)")
}
