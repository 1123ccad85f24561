package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/auth"
)

func newKeysCmd(_ *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate an Ed25519 key pair for signing tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			privatePEM, publicPEM, err := auth.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return fmt.Errorf("create %s: %w", outDir, err)
			}
			privatePath := filepath.Join(outDir, "crm_private.pem")
			publicPath := filepath.Join(outDir, "crm_public.pem")
			if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key: %s\n", privatePath, publicPath)
			return err
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory to write crm_private.pem and crm_public.pem into")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		keyFile string
		id      core.Identity
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for an operator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyFile == "" {
				keyFile = a.cfg.AuthPrivateKeyFile
			}
			if keyFile == "" {
				return fmt.Errorf("no private key: pass --key or set APP_AUTH_PRIVATE_KEY_FILE")
			}
			signer, err := auth.LoadSigner(keyFile)
			if err != nil {
				return err
			}
			token, err := signer.Sign(id)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"token": token})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "PEM private key (defaults to APP_AUTH_PRIVATE_KEY_FILE)")
	cmd.Flags().Int64Var(&id.ID, "user-id", 0, "operator id")
	cmd.Flags().StringVar(&id.Email, "email", "", "operator email")
	cmd.Flags().StringVar(&id.FullName, "name", "", "operator full name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
