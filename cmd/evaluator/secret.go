package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nlq_eval/internal/storage"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage encrypted credentials for direct SQL execution",
	}

	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random salt for ENCRYPTION_SALT",
		RunE: func(cmd *cobra.Command, args []string) error {
			salt, err := storage.GenerateSalt(16)
			if err != nil {
				return err
			}
			fmt.Println(salt)
			return nil
		},
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a password read from stdin for DIRECT_SQL_PASSWORD_ENCRYPTED",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DirectSQL.Passphrase == "" {
				return fmt.Errorf("ENCRYPTION_PASSPHRASE is required")
			}
			enc, err := storage.NewEncryptionFromPassphrase(cfg.DirectSQL.Passphrase, cfg.DirectSQL.Salt)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			out, err := enc.EncryptString(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, out)
			return nil
		},
	}

	cmd.AddCommand(keygen, encrypt)
	return cmd
}
