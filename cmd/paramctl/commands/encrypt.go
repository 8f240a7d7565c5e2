package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	pcerrors "github.com/systmms/paramctl/internal/errors"
	"github.com/systmms/paramctl/internal/inputs"
	"github.com/systmms/paramctl/internal/secure"
	"gopkg.in/yaml.v3"
)

func NewEncryptCommand(cfg *Config) *cobra.Command {
	var (
		prompt bool
		echo   bool
	)

	cmd := &cobra.Command{
		Use:   "encrypt FILE KEY_ID PATH=VALUE...",
		Short: "Encrypt values into a parameter file",
		Long: `Encrypt encrypts each value under the given KMS key and writes the
resulting EncryptedValue and KeyId records into FILE, creating it if
needed. Existing entries for other paths are left untouched.

With --prompt the arguments are bare paths and each value is read from
the terminal instead (echo suppressed unless --echo).`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			file, keyID, rest := args[0], args[1], args[2:]

			sess, err := newSession(ctx, cfg)
			if err != nil {
				return err
			}

			keyID, err = sess.Codec.FormatKeyID(ctx, keyID)
			if err != nil {
				return err
			}

			values := make(map[string]*secure.Value)
			defer func() {
				for _, v := range values {
					v.Destroy()
				}
			}()

			if prompt {
				prompter := inputs.NewTerminalPrompter()
				for _, path := range rest {
					var plaintext string
					if echo {
						plaintext, err = prompter.Prompt(path + ": ")
					} else {
						plaintext, err = prompter.PromptSecret(path + ": ")
					}
					if err != nil {
						return err
					}
					values[path] = secure.FromString(plaintext)
				}
			} else {
				for _, pair := range rest {
					path, value, ok := strings.Cut(pair, "=")
					if !ok || path == "" {
						return pcerrors.UserError{
							Message:    fmt.Sprintf("Invalid argument %q", pair),
							Suggestion: "Provide PATH=VALUE pairs, or use --prompt with bare paths",
						}
					}
					values[path] = secure.FromString(value)
				}
			}

			root, err := loadDocument(file)
			if err != nil {
				return err
			}

			for _, path := range sortedKeys(values) {
				ciphertext, err := sess.Codec.Encrypt(ctx, keyID, values[path])
				if err != nil {
					return err
				}
				upsertEncrypted(root, path, ciphertext, keyID)
			}

			data, err := yaml.Marshal(root)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file, data, 0o600); err != nil {
				return err
			}

			cfg.Logger.Info("Wrote %d encrypted value(s) to %s", len(values), file)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prompt, "prompt", false, "Read values from the terminal instead of the command line")
	cmd.Flags().BoolVar(&echo, "echo", false, "Echo prompted values while typing")

	return cmd
}

// loadDocument reads a parameter file as a raw mapping node, or an empty one
// when the file does not exist yet.
func loadDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &yaml.Node{Kind: yaml.MappingNode}, nil
	}
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pcerrors.UserError{
			Message: fmt.Sprintf("Failed to parse %s", path),
			Details: err.Error(),
		}
	}
	if len(doc.Content) == 0 {
		return &yaml.Node{Kind: yaml.MappingNode}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, pcerrors.ValidationError{Message: fmt.Sprintf("%s: parameter file must be a mapping", path)}
	}
	return root, nil
}

// upsertEncrypted sets EncryptedValue and KeyId on the entry for path,
// replacing any plaintext value form while preserving every other field and
// the document's key order.
func upsertEncrypted(root *yaml.Node, path, ciphertext, keyID string) {
	scalar := func(v string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	}

	var record *yaml.Node
	for i := 0; i < len(root.Content); i += 2 {
		if root.Content[i].Value != path {
			continue
		}
		if root.Content[i+1].Kind != yaml.MappingNode {
			root.Content[i+1] = &yaml.Node{Kind: yaml.MappingNode}
		}
		record = root.Content[i+1]
		break
	}
	if record == nil {
		record = &yaml.Node{Kind: yaml.MappingNode}
		root.Content = append(root.Content, scalar(path), record)
	}

	kept := record.Content[:0]
	for i := 0; i < len(record.Content); i += 2 {
		switch record.Content[i].Value {
		case "Value", "Input", "EncryptedValue", "KeyId":
		default:
			kept = append(kept, record.Content[i], record.Content[i+1])
		}
	}
	record.Content = append(kept,
		scalar("EncryptedValue"), scalar(ciphertext),
		scalar("KeyId"), scalar(keyID))
}

func sortedKeys(values map[string]*secure.Value) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
