package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
)

// Development helper for the withdrawal second factor.
// Without --secret a new secret is enrolled; with it, the current code is printed.
var (
	secret  string
	account string
)

var rootCmd = &cobra.Command{
	Use:   "generate-totp",
	Short: "Create a TOTP secret or print the current code for one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if secret == "" {
			key, err := totp.Generate(totp.GenerateOpts{Issuer: "Ludo", AccountName: account})
			if err != nil {
				return fmt.Errorf("generate secret: %w", err)
			}
			secret = key.Secret()
			fmt.Printf("Secret:  %s\n", secret)
			fmt.Printf("URL:     %s\n", key.URL())
			fmt.Println("Store the secret in users.google2fa_secret to require a code on withdraw.")
		}

		code, err := totp.GenerateCode(secret, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		fmt.Printf("Current TOTP Code: %s\n", code)
		fmt.Printf("Valid for: ~30 seconds\n")
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&secret, "secret", os.Getenv("TOTP_SECRET"), "base32 secret (default $TOTP_SECRET)")
	rootCmd.Flags().StringVar(&account, "account", "user@ludo", "account label for a new secret")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
