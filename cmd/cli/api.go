package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/icon-project/goagree/client"
	"github.com/icon-project/goagree/common"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/server"
)

const DefaultEndpoint = "http://127.0.0.1:9080"

func APIPersistentPreRunE(vc *viper.Viper, apiClient *client.Client) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		endpoint := vc.GetString("endpoint")
		if endpoint == "" {
			return errors.IllegalArgumentError.New("endpoint is empty")
		}
		*apiClient = *client.NewClient(nil, endpoint)
		if n := vc.GetString("node"); n != "" {
			var addr common.Address
			if err := addr.SetString(n); err != nil {
				return errors.IllegalArgumentError.Wrapf(err, "invalid node=%s", n)
			}
			apiClient.Node = addr.String()
		}
		return nil
	}
}

func AddAPIRequiredFlags(c *cobra.Command) {
	pFlags := c.PersistentFlags()
	pFlags.String("endpoint", DefaultEndpoint, "Endpoint of the HTTP API")
	pFlags.String("node", "", "Address of the validator to query")
}

func newAPICommand(parentCmd *cobra.Command, parentVc *viper.Viper, use, short string) (*cobra.Command, *viper.Viper, *client.Client) {
	apiClient := new(client.Client)
	cmd, vc := NewCommand(parentCmd, parentVc, use, short)
	cmd.PersistentPreRunE = APIPersistentPreRunE(vc, apiClient)
	AddAPIRequiredFlags(cmd)
	BindPFlags(vc, cmd.PersistentFlags())
	return cmd, vc, apiClient
}

// NewAPICmds adds the commands querying a running process.
func NewAPICmds(parentCmd *cobra.Command, parentVc *viper.Viper) {
	NewStatusCmd(parentCmd, parentVc)
	NewEvidenceCmd(parentCmd, parentVc)
	NewCommitCmd(parentCmd, parentVc)
	NewTxCmd(parentCmd, parentVc)
	NewMonitorCmd(parentCmd, parentVc)
}

func NewStatusCmd(parentCmd *cobra.Command, parentVc *viper.Viper) *cobra.Command {
	cmd, _, apiClient := newAPICommand(parentCmd, parentVc, "status", "Display status of validators")
	cmd.Args = ArgsWithDefaultErrorFunc(cobra.NoArgs)
	flags := cmd.Flags()
	watch := flags.BoolP("watch", "w", false, "Refresh the status until Ctrl-C")
	interval := flags.Duration("interval", time.Second, "Refresh interval of --watch")
	asJson := flags.Bool("json", false, "Print as JSON")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !*watch {
			sts, err := apiClient.Status()
			if err != nil {
				return err
			}
			if *asJson {
				return JsonPrettyPrintln(cmd.OutOrStdout(), sts)
			}
			fmt.Fprintln(cmd.OutOrStdout(), StatusToTable(sts, 50))
			return nil
		}
		if *interval <= 0 {
			return errors.IllegalArgumentError.Errorf("invalid interval=%s", *interval)
		}
		g, guiTermCh := NewCui()
		defer TermGui(g, guiTermCh)
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			sts, err := apiClient.Status()
			if err != nil {
				return err
			}
			UpdateCuiByStatus(g, time.Now().Format(time.RFC3339), sts)
			select {
			case <-guiTermCh:
				return nil
			case <-ticker.C:
			}
		}
	}
	return cmd
}

func NewEvidenceCmd(parentCmd *cobra.Command, parentVc *viper.Viper) *cobra.Command {
	cmd, _, apiClient := newAPICommand(parentCmd, parentVc, "evidence [ADDRESS]", "Display misbehavior evidence")
	cmd.Args = ArgsWithDefaultErrorFunc(cobra.MaximumNArgs(1))
	asJson := cmd.Flags().Bool("json", false, "Print as JSON")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var addr *common.Address
		if len(args) > 0 {
			a, err := common.NewAddressFromString(args[0])
			if err != nil {
				return errors.IllegalArgumentError.Wrapf(err, "invalid address=%s", args[0])
			}
			addr = &a
		}
		es, err := apiClient.Evidence(addr)
		if err != nil {
			return err
		}
		if *asJson {
			return JsonPrettyPrintln(cmd.OutOrStdout(), es)
		}
		fmt.Fprintln(cmd.OutOrStdout(), EvidenceToTable(es, 50))
		return nil
	}
	return cmd
}

func NewCommitCmd(parentCmd *cobra.Command, parentVc *viper.Viper) *cobra.Command {
	cmd, _, apiClient := newAPICommand(parentCmd, parentVc, "commit HEIGHT", "Display the commit at the height")
	cmd.Args = ArgsWithDefaultErrorFunc(cobra.ExactArgs(1))
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		height, err := strconv.ParseInt(args[0], 0, 64)
		if err != nil || height < 1 {
			return errors.IllegalArgumentError.Errorf("invalid height=%s", args[0])
		}
		c, err := apiClient.Commit(height)
		if err != nil {
			return err
		}
		return JsonPrettyPrintln(cmd.OutOrStdout(), c)
	}
	return cmd
}

func NewTxCmd(parentCmd *cobra.Command, parentVc *viper.Viper) *cobra.Command {
	cmd, _, apiClient := newAPICommand(parentCmd, parentVc, "tx DATA", "Submit a transaction")
	cmd.Args = ArgsWithDefaultErrorFunc(cobra.ExactArgs(1))
	flags := cmd.Flags()
	isHex := flags.Bool("hex", false, "DATA is hex encoded, with or without 0x")
	isFile := flags.Bool("file", false, "DATA is the path of a file holding the transaction")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var data []byte
		switch {
		case *isFile:
			b, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Errorf("fail to read file=%s err=%+v", args[0], err)
			}
			data = b
		case *isHex:
			b, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
			if err != nil {
				return errors.IllegalArgumentError.Wrap(err, "invalid hex data")
			}
			data = b
		default:
			data = []byte(args[0])
		}
		res, err := apiClient.SendTransaction(data)
		if err != nil {
			return err
		}
		return JsonPrettyPrintln(cmd.OutOrStdout(), res)
	}
	return cmd
}

func NewMonitorCmd(parentCmd *cobra.Command, parentVc *viper.Viper) *cobra.Command {
	cmd, _, apiClient := newAPICommand(parentCmd, parentVc, "monitor [HEIGHT]", "Stream commits from the height")
	cmd.Args = ArgsWithDefaultErrorFunc(cobra.MaximumNArgs(1))
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var height int64
		if len(args) > 0 {
			h, err := strconv.ParseInt(args[0], 0, 64)
			if err != nil || h < 0 {
				return errors.IllegalArgumentError.Errorf("invalid height=%s", args[0])
			}
			height = h
		}
		return apiClient.MonitorCommits(height, func(v *server.CommitNotification) {
			fmt.Fprintf(cmd.OutOrStdout(), "height=%d round=%d hash=%s txs=%d\n",
				v.Height, v.Round, v.Hash, v.Txs)
		}, nil)
	}
	return cmd
}
