package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/org/chatgateway/internal/auth"
	"github.com/org/chatgateway/internal/billing"
	"github.com/org/chatgateway/internal/crypto"
	"github.com/org/chatgateway/internal/secret"
	"github.com/org/chatgateway/pkg/models"
	"github.com/spf13/cobra"
)

// Commands below run locally and read server secrets from the environment.

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new ENCRYPTION_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key))
			return nil
		},
	}
}

func encryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <provider> [key]",
		Short: "Encrypt a provider key with ENCRYPTION_KEY for direct database seeding",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := crypto.ParseKey(os.Getenv("ENCRYPTION_KEY"))
			if err != nil {
				return fmt.Errorf("ENCRYPTION_KEY: %w", err)
			}
			vault, err := crypto.NewVault(master)
			if err != nil {
				return err
			}

			provider := models.Provider(args[0])
			key := ""
			if len(args) == 2 {
				key = args[1]
			} else {
				fmt.Fprint(os.Stderr, "API key: ")
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Scan()
				key = scanner.Text()
			}
			key = strings.TrimSpace(key)
			if err := secret.ValidateKey(provider, key); err != nil {
				return err
			}

			sealed, err := vault.Encrypt(key)
			if err != nil {
				return err
			}
			printResult(map[string]any{
				"provider":    provider,
				"encrypted":   sealed,
				"fingerprint": vault.Fingerprint(key),
			})
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development access token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			save, _ := cmd.Flags().GetBool("save")

			verifier, err := auth.NewVerifier(auth.Config{
				Secret:   []byte(os.Getenv("JWT_SECRET")),
				Audience: os.Getenv("JWT_AUDIENCE"),
				Issuer:   os.Getenv("JWT_ISSUER"),
			})
			if err != nil {
				return err
			}
			tok, err := verifier.Issue(args[0], email, ttl)
			if err != nil {
				return err
			}
			if save {
				cfg.Token = tok
				if err := saveConfig(); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "Token saved to config.")
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	cmd.Flags().Bool("save", false, "Store the token in the CLI config")
	return cmd
}

func plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List active Stripe prices to map onto plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := billing.NewCatalog(os.Getenv("STRIPE_SECRET_KEY"), nil)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			prices, err := catalog.ActivePrices(ctx)
			if err != nil {
				printError(err.Error())
				return nil
			}
			rows := make([]any, 0, len(prices))
			for _, p := range prices {
				rows = append(rows, map[string]any{
					"id":          p.ID,
					"nickname":    p.Nickname,
					"product_id":  p.ProductID,
					"unit_amount": p.UnitAmount,
					"currency":    p.Currency,
					"interval":    p.Interval,
				})
			}
			printRows(rows, "id", "nickname", "product_id", "unit_amount", "currency", "interval")
			return nil
		},
	}
}
