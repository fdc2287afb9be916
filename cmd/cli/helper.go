package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/icon-project/goagree/common/errors"
)

func NewCommand(parentCmd *cobra.Command, parentVc *viper.Viper, use, short string) (*cobra.Command, *viper.Viper) {
	c := &cobra.Command{Use: use, Short: short}
	c.SetFlagErrorFunc(DefaultFlagErrorFunc)
	if parentCmd != nil {
		parentCmd.AddCommand(c)
	}

	var pFlags *pflag.FlagSet
	envPrefix := strings.ReplaceAll(c.CommandPath(), " ", "_")
	if parentVc != nil {
		if v := parentVc.Get("env_prefix"); v != nil {
			envPrefix = v.(string)
		}
		if v := parentVc.Get("pflags"); v != nil {
			pFlags = v.(*pflag.FlagSet)
		}
	}
	vc := NewViper(envPrefix)
	if pFlags != nil {
		BindPFlags(vc, pFlags)
	}

	return c, vc
}

func NewViper(envPrefix string) *viper.Viper {
	vc := viper.New()
	vc.AutomaticEnv()
	vc.SetEnvPrefix(envPrefix)
	vc.Set("env_prefix", envPrefix)
	return vc
}

func BindPFlags(vc *viper.Viper, pFlags *pflag.FlagSet) error {
	var bindPFlags *pflag.FlagSet
	if v := vc.Get("pflags"); v != nil {
		bindPFlags = v.(*pflag.FlagSet)
	} else {
		bindPFlags = pflag.NewFlagSet("pflags", pflag.ContinueOnError)
		vc.Set("pflags", bindPFlags)
	}
	bindPFlags.AddFlagSet(pFlags)
	return vc.BindPFlags(pFlags)
}

// ViperDecodeOptJson decodes with json tags. A RawMessage field takes
// either an inline object or the path of a file to read.
func ViperDecodeOptJson(c *mapstructure.DecoderConfig) {
	c.TagName = "json"
	c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		func(inputValType reflect.Type, outValType reflect.Type, input interface{}) (interface{}, error) {
			if outValType.Name() == "RawMessage" {
				if inputValType.Kind() == reflect.Map && inputValType.Key().Kind() == reflect.String {
					return json.Marshal(input)
				} else if inputValType.Kind() == reflect.String && input != "" {
					return os.ReadFile(input.(string))
				}
			}
			return input, nil
		},
		c.DecodeHook)
}

// ViperDecodeOptSquash decodes embedded structs from the enclosing keys.
func ViperDecodeOptSquash(c *mapstructure.DecoderConfig) {
	c.Squash = true
}

func ArgsWithErrorFunc(arg cobra.PositionalArgs,
	errFunc func(cmd *cobra.Command, err error) error) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := arg(cmd, args); err != nil {
			return errFunc(cmd, err)
		}
		return nil
	}
}

func ArgsWithDefaultErrorFunc(arg cobra.PositionalArgs) cobra.PositionalArgs {
	return ArgsWithErrorFunc(arg, DefaultArgErrorFunc)
}

func DefaultArgErrorFunc(cmd *cobra.Command, err error) error {
	cmd.Println("Usage: " + cmd.UseLine())
	return err
}

// DefaultFlagErrorFunc lists the flags of cmd before returning err.
func DefaultFlagErrorFunc(cmd *cobra.Command, err error) error {
	var names []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand != "" {
			names = append(names, fmt.Sprintf("--%s or -%s", f.Name, f.Shorthand))
		} else {
			names = append(names, "--"+f.Name)
		}
	})
	cmd.Println("Available Flags: " + strings.Join(names, ", "))
	return err
}

func JsonPrettyPrintln(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Errorf("fail to print v=%+v err=%+v", v, err)
	}
	return nil
}

// JsonPrettySaveFile writes v as indented JSON, creating the parent
// directory when needed.
func JsonPrettySaveFile(filename string, perm os.FileMode, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Errorf("fail to marshal v=%+v err=%+v", v, err)
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Errorf("fail to create directory %s err=%+v", dir, err)
		}
	}
	if err := os.WriteFile(filename, append(b, '\n'), perm); err != nil {
		return errors.Errorf("fail to save to the file=%s err=%+v", filename, err)
	}
	return nil
}
