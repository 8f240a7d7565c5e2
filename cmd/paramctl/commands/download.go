package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systmms/paramctl/internal/paramfile"
	"github.com/systmms/paramctl/internal/secure"
)

func NewDownloadCommand(cfg *Config) *cobra.Command {
	var (
		output         string
		reencryptKeyID string
	)

	cmd := &cobra.Command{
		Use:   "download PATH...",
		Short: "Render live parameters as a parameter file",
		Long: `Download lists every parameter under the given paths and renders them as
a parameter file. SecureString values are re-encrypted through KMS so the
file holds EncryptedValue and KeyId, never plaintext secrets. With a
single PATH it becomes the file's .BASEPATH.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			sess, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}

			var params []paramfile.ResolvedParameter
			for _, path := range args {
				path = strings.TrimRight(path, "/")
				cfg.Logger.Info("Downloading %s...", path)

				live, err := sess.Store.ListByPrefix(ctx, path)
				if err != nil {
					return err
				}

				for _, p := range live {
					rp := paramfile.ResolvedParameter{
						Path:           p.Name,
						Kind:           p.Kind,
						AllowedPattern: p.AllowedPattern,
						Description:    p.Description,
					}

					if p.Kind == paramfile.KindSecureString {
						keyID := p.KeyID
						if reencryptKeyID != "" {
							keyID = reencryptKeyID
						}
						keyID, err = sess.Codec.FormatKeyID(ctx, keyID)
						if err != nil {
							return err
						}

						plaintext := secure.FromString(p.Value)
						ciphertext, err := sess.Codec.Encrypt(ctx, keyID, plaintext)
						plaintext.Destroy()
						if err != nil {
							return err
						}

						rp.EncryptedValue = ciphertext
						rp.KeyID = keyID
					} else {
						rp.Value = p.Value
					}

					params = append(params, rp)
				}
			}

			basePath := ""
			if len(args) == 1 {
				basePath = strings.TrimRight(args[0], "/")
			}

			data, err := paramfile.Compile(params, basePath)
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Print(string(data))
				return nil
			}
			return os.WriteFile(output, data, 0o600)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().StringVar(&reencryptKeyID, "reencrypt-key-id", "", "Re-encrypt SecureStrings under this key instead of their current one")

	return cmd
}
