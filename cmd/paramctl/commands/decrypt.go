package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/reconcile"
)

func NewDecryptCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt FILE",
		Short: "Print plaintext for every encrypted value in a file",
		Long: `Decrypt decrypts each EncryptedValue entry in FILE through KMS and prints
the plaintext to stdout, one "path: value" line per entry. Entries that
fail to decrypt are reported and the rest are still attempted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			sess, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}

			file, err := paramfile.LoadFile(args[0])
			if err != nil {
				return err
			}

			var failed []reconcile.PathError
			for _, entry := range file.Entries {
				if entry.EncryptedValue == "" {
					continue
				}

				plaintext, err := sess.Codec.Decrypt(ctx, entry.EncryptedValue)
				if err != nil {
					failed = append(failed, reconcile.PathError{Path: entry.Path, Err: err})
					continue
				}

				err = plaintext.WithString(func(s string) error {
					fmt.Printf("%s: %s\n", entry.Path, s)
					return nil
				})
				plaintext.Destroy()
				if err != nil {
					return err
				}
			}

			return failedError(failed)
		},
	}

	return cmd
}
