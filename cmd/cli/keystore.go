package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/wallet"
)

func getPasswordFromFlags(secret, pass string) ([]byte, error) {
	if secret != "" {
		pb, err := os.ReadFile(secret)
		if err != nil {
			return nil, errors.Errorf("fail to open KeySecret err=%+v", err)
		}
		return pb, nil
	}
	return []byte(pass), nil
}

func NewKeyStoreCmd(parentCmd *cobra.Command, parentVc *viper.Viper) (*cobra.Command, *viper.Viper) {
	rootCmd, vc := NewCommand(parentCmd, parentVc, "keystore", "Keystore manipulation")
	rootCmd.AddCommand(newKeyStoreGenCmd("gen"), newVerifyCmd("verify"))
	return rootCmd, vc
}

func newKeyStoreGenCmd(c string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   c,
		Short: "Generate keystore",
		Args:  ArgsWithDefaultErrorFunc(cobra.NoArgs),
	}
	flags := cmd.Flags()
	out := flags.StringP("out", "o", "keystore.json", "Output file path")
	secret := flags.StringP("secret", "s", "", "KeySecret file path")
	pass := flags.StringP("password", "p", DefaultKeyStorePass, "Password for the keystore")
	scryptN := flags.Int("scrypt_n", wallet.DefaultScryptN, "Scrypt cost parameter")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		pb, err := getPasswordFromFlags(*secret, *pass)
		if err != nil {
			return err
		}
		w := wallet.New()
		ks, err := wallet.KeyStoreFromWallet(w, pb, *scryptN)
		if err != nil {
			return errors.Errorf("fail to generate keystore err=%+v", err)
		}
		if err := os.WriteFile(*out, ks, 0600); err != nil {
			return errors.Errorf("fail to write keystore err=%+v", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s ==> %s\n", w.Address().String(), *out)
		return nil
	}
	return cmd
}

func newVerifyCmd(c string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   c + " FILE...",
		Short: "Verify keystore with the password",
		Args:  ArgsWithDefaultErrorFunc(cobra.MinimumNArgs(1)),
	}
	flags := cmd.Flags()
	secret := flags.StringP("secret", "s", "", "KeySecret file path")
	pass := flags.StringP("password", "p", DefaultKeyStorePass, "Password for the keystore")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		pb, err := getPasswordFromFlags(*secret, *pass)
		if err != nil {
			return err
		}
		var failed int
		for _, arg := range args {
			kb, err := os.ReadFile(arg)
			if err != nil {
				return errors.Errorf("fail to open keystore file err=%+v", err)
			}
			addr, err := wallet.ReadAddressFromKeyStore(kb)
			if err != nil {
				return errors.Errorf("fail to parse keystore file=%s err=%+v", arg, err)
			}
			w, err := wallet.NewFromKeyStore(kb, pb)
			switch {
			case err != nil:
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s FAIL err=%v\n", arg, err)
			case w.Address() != addr:
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s FAIL address mismatch\n", arg)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s SUCCESS %s\n", arg, addr)
			}
		}
		if failed > 0 {
			return errors.Errorf("%d keystore(s) failed", failed)
		}
		return nil
	}
	return cmd
}
