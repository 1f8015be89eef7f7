package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/dto"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

// Debug helper: recomputes the EIP-712 digest of a /withdraw response and
// recovers the signer, to compare against the account the pool contract trusts.
var (
	configPath string
	expected   string
)

var rootCmd = &cobra.Command{
	Use:   "verify-permit [permit.json]",
	Short: "Recover the signer of a withdrawal authorization",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Blockchain.PoolAddress == "" {
			return fmt.Errorf("blockchain.pool_address (POOL_ADDRESS) is required")
		}

		in := io.Reader(os.Stdin)
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		var permit dto.WithdrawalAuthorization
		if err := json.NewDecoder(in).Decode(&permit); err != nil {
			return fmt.Errorf("decode permit: %w", err)
		}

		amount, ok := new(big.Int).SetString(permit.Amount, 10)
		if !ok {
			return fmt.Errorf("amount %q is not a wei integer", permit.Amount)
		}
		if !common.IsHexAddress(permit.Address) {
			return fmt.Errorf("address %q is not an EVM address", permit.Address)
		}

		domain := chain.Domain{
			Name:              cfg.Blockchain.DomainName,
			Version:           cfg.Blockchain.DomainVersion,
			ChainID:           cfg.Blockchain.ChainID,
			VerifyingContract: common.HexToAddress(cfg.Blockchain.PoolAddress),
		}
		payload := chain.WithdrawalPayload{
			User:             common.HexToAddress(permit.Address),
			WithdrawalAmount: amount,
			Timestamp:        permit.Timestamp,
			Nonce:            permit.Nonce,
		}

		hash, err := domain.Hash(payload)
		if err != nil {
			return err
		}
		signer, err := chain.RecoverSigner(domain, payload, permit.Signature)
		if err != nil {
			return err
		}

		fmt.Printf("Domain:  %s v%s chain %d pool %s\n", domain.Name, domain.Version, domain.ChainID, domain.VerifyingContract.Hex())
		fmt.Printf("Amount:  %s wei (%s)\n", amount, chain.FromWei(amount))
		fmt.Printf("Digest:  %s\n", hexutil.Encode(hash))
		fmt.Printf("Signer:  %s\n", signer.Hex())

		if expected != "" {
			if !strings.EqualFold(expected, signer.Hex()) {
				fmt.Printf("❌ Signer does not match %s\n", expected)
				os.Exit(2)
			}
			fmt.Println("✅ Signer matches")
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file")
	rootCmd.Flags().StringVar(&expected, "expect", "", "signer address the pool contract trusts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
