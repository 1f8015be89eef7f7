package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// Development helper: signs an RS256 access token the ledger accepts.
// The user id goes in sub, exactly as the account service issues it.
var (
	keyPath string
	userID  uint64
	issuer  string
	ttl     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "generate-jwt",
	Short: "Generate an RS256 access token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userID == 0 {
			return fmt.Errorf("--user is required")
		}
		pemBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return fmt.Errorf("parse private key: %w", err)
		}

		now := time.Now()
		claims := jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		}
		tokenString, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}

		fmt.Println("============================================================")
		fmt.Println("JWT Token Generated for Testing")
		fmt.Println("============================================================")
		fmt.Println()
		fmt.Println(tokenString)
		fmt.Println()
		fmt.Printf("  User ID: %d\n", userID)
		fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
		fmt.Println()
		fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/balance\n", tokenString)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&keyPath, "key", "jwt_private.pem", "PEM encoded RSA private key")
	rootCmd.Flags().Uint64Var(&userID, "user", 0, "user id placed in the sub claim")
	rootCmd.Flags().StringVar(&issuer, "issuer", "", "iss claim; must match auth.issuer when configured")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
