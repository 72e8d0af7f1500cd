// Command cryptofsctl is a small CLI over a vault, in the shape of
// rclone's cmd/ tree: a root cobra.Command with one subcommand per
// operation, each parsing its own flags via pflag.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host/localfs"
	"github.com/majacQ/cryptofs/vaultfs"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cryptofsctl:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cryptofsctl",
		Short: "Inspect and manipulate a cryptofs vault",
	}
	root.AddCommand(initCmd(), lsCmd(), catCmd(), putCmd())
	return root
}

func loadOrCreateKey(masterkeyPath, password string, create bool) (crypto.MasterKey, error) {
	if create {
		key, err := crypto.NewMasterKey()
		if err != nil {
			return crypto.MasterKey{}, err
		}
		f, err := os.Create(masterkeyPath)
		if err != nil {
			return crypto.MasterKey{}, err
		}
		defer f.Close()
		if err := key.Marshal(f, password); err != nil {
			return crypto.MasterKey{}, err
		}
		return key, nil
	}

	f, err := os.Open(masterkeyPath)
	if err != nil {
		return crypto.MasterKey{}, err
	}
	defer f.Close()
	return crypto.UnmarshalMasterKey(f, password)
}

func initCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "init <vault-dir>",
		Short: "Create a new vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			fs := localfs.New()
			if err := fs.MkdirAll(root); err != nil {
				return err
			}
			key, err := loadOrCreateKey(root+"/masterkey.cryptomator", password, true)
			if err != nil {
				return err
			}
			_, err = vaultfs.Create(fs, root, key)
			return err
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "vault passphrase")
	return cmd
}

func openVault(root, password string, readonly bool) (*vaultfs.Vault, error) {
	fs := localfs.New()
	key, err := loadOrCreateKey(root+"/masterkey.cryptomator", password, false)
	if err != nil {
		return nil, err
	}
	var opts []vaultfs.Option
	if readonly {
		opts = append(opts, vaultfs.Readonly())
	}
	return vaultfs.Open(fs, root, key, opts...)
}

func lsCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "ls <vault-dir> <path>",
		Short: "List a directory inside a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(args[0], password, true)
			if err != nil {
				return err
			}
			defer v.Close()

			stream, err := v.List(args[1])
			if err != nil {
				return err
			}
			defer stream.Close()

			for {
				entry, ok, err := stream.Next()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				fmt.Println(entry.CleartextName)
			}
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "vault passphrase")
	return cmd
}

func catCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "cat <vault-dir> <path>",
		Short: "Print a file's decrypted content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(args[0], password, true)
			if err != nil {
				return err
			}
			defer v.Close()

			h, err := v.OpenFile(args[1], vaultfs.OpenOptions{})
			if err != nil {
				return err
			}
			defer h.Close()

			buf := make([]byte, 32*1024)
			var pos int64
			for {
				n, err := h.Read(buf, pos)
				if n > 0 {
					os.Stdout.Write(buf[:n])
					pos += int64(n)
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "vault passphrase")
	return cmd
}

func putCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "put <vault-dir> <path>",
		Short: "Write stdin's content to a file inside a vault",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault(args[0], password, false)
			if err != nil {
				return err
			}
			defer v.Close()

			h, err := v.OpenFile(args[1], vaultfs.OpenOptions{Writable: true, CreateNew: true})
			if err != nil {
				return err
			}
			defer h.Close()

			buf := make([]byte, 32*1024)
			var pos int64
			for {
				n, rerr := os.Stdin.Read(buf)
				if n > 0 {
					if _, werr := h.Write(buf[:n], pos); werr != nil {
						return werr
					}
					pos += int64(n)
				}
				if rerr == io.EOF {
					break
				}
				if rerr != nil {
					return rerr
				}
			}
			return h.Force(true)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "vault passphrase")
	return cmd
}
