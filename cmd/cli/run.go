package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/go-playground/validator.v9"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
	"github.com/icon-project/goagree/common/wallet"
	"github.com/icon-project/goagree/module"
	"github.com/icon-project/goagree/node"
	"github.com/icon-project/goagree/server"
)

const (
	DefaultKeyStorePass = "goagree"
	logLevels           = "trace debug info warn error fatal panic"
)

type RunConfig struct {
	node.Config

	Validators   int      `json:"validators" validate:"min=1,max=64"`
	RPCAddr      string   `json:"rpc_addr" validate:"required"`
	KeyStores    []string `json:"key_stores,omitempty" validate:"max=64"`
	KeyStorePass string   `json:"key_password,omitempty"`

	LogLevel     string               `json:"log_level" validate:"oneof=trace debug info warn error fatal panic"`
	ConsoleLevel string               `json:"console_level" validate:"oneof=trace debug info warn error fatal panic"`
	LogWriter    *log.WriterConfig    `json:"log_writer,omitempty"`
	LogForwarder *log.ForwarderConfig `json:"log_forwarder,omitempty"`
}

func (cfg *RunConfig) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.FatalConfigError.Wrap(err, "invalid run configuration")
	}
	if len(cfg.KeyStores) > cfg.Validators {
		return errors.FatalConfigError.Errorf("key_stores=%d exceeds validators=%d",
			len(cfg.KeyStores), cfg.Validators)
	}
	return cfg.Config.Validate()
}

// Wallets loads the configured key stores and creates fresh wallets for
// the remaining validators.
func (cfg *RunConfig) Wallets() ([]module.Wallet, error) {
	pass := cfg.KeyStorePass
	if pass == "" {
		pass = DefaultKeyStorePass
	}
	ws := make([]module.Wallet, 0, cfg.Validators)
	for _, ks := range cfg.KeyStores {
		bs, err := os.ReadFile(cfg.ResolveAbsolute(ks))
		if err != nil {
			return nil, errors.Wrapf(err, "fail to read key store %s", ks)
		}
		w, err := wallet.NewFromKeyStore(bs, []byte(pass))
		if err != nil {
			return nil, errors.Wrapf(err, "fail to decrypt key store %s", ks)
		}
		ws = append(ws, w)
	}
	for len(ws) < cfg.Validators {
		ws = append(ws, wallet.New())
	}
	return ws, nil
}

func defaultRunConfig() *RunConfig {
	return &RunConfig{
		Config:       *node.DefaultConfig(),
		Validators:   4,
		RPCAddr:      "127.0.0.1:9080",
		LogLevel:     "debug",
		ConsoleLevel: "info",
	}
}

// LoadRunConfig merges the configuration file, environment and flags.
func LoadRunConfig(vc *viper.Viper) (*RunConfig, error) {
	cfg := defaultRunConfig()
	if cfgFile := vc.GetString("config"); cfgFile != "" {
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, errors.Errorf("fail to open config file=%s err=%+v", cfgFile, err)
		}
		defer f.Close()
		vc.SetConfigType("json")
		if err := vc.ReadConfig(f); err != nil {
			return nil, errors.Errorf("fail to read config file=%s err=%+v", cfgFile, err)
		}
		cfg.FilePath = node.ResolveAbsolute("", cfgFile)
	}
	if err := vc.Unmarshal(cfg, ViperDecodeOptJson, ViperDecodeOptSquash); err != nil {
		return nil, errors.Errorf("fail to unmarshall run config err=%+v", err)
	}
	if dbType := vc.GetString("db_type"); dbType != "" {
		cfg.Chain.DBType = dbType
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SetupLogger(cfg *RunConfig, modLevels map[string]string) (log.Logger, error) {
	logger := log.GlobalLogger()
	lv, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, errors.FatalConfigError.Errorf("invalid log_level=%s", cfg.LogLevel)
	}
	logger.SetLevel(lv)
	if lv, err = log.ParseLevel(cfg.ConsoleLevel); err != nil {
		return nil, errors.FatalConfigError.Errorf("invalid console_level=%s", cfg.ConsoleLevel)
	}
	logger.SetConsoleLevel(lv)
	for mod, lvStr := range modLevels {
		lv, err := log.ParseLevel(lvStr)
		if err != nil {
			return nil, errors.FatalConfigError.Errorf("invalid mod_level mod=%s level=%s", mod, lvStr)
		}
		logger.SetModuleLevel(mod, lv)
	}
	if cfg.LogWriter != nil && cfg.LogWriter.Filename != "" {
		cfg.LogWriter.Filename = cfg.ResolveAbsolute(cfg.LogWriter.Filename)
		w, err := log.NewWriter(cfg.LogWriter)
		if err != nil {
			return nil, err
		}
		logger.SetFileWriter(w)
	}
	if cfg.LogForwarder != nil && cfg.LogForwarder.Vendor != "" {
		if err := log.AddForwarder(cfg.LogForwarder); err != nil {
			return nil, err
		}
	}
	return logger, nil
}

// Run serves the validators until ctx is done or the server fails.
func Run(ctx context.Context, cfg *RunConfig, logger log.Logger) error {
	ws, err := cfg.Wallets()
	if err != nil {
		return err
	}
	cluster, err := node.NewCluster(ws, &cfg.Config, logger)
	if err != nil {
		return err
	}
	srv := server.NewManager(cfg.RPCAddr, logger)
	for _, n := range cluster.Nodes() {
		srv.SetNode(n)
	}
	if err := cluster.Start(); err != nil {
		cluster.Term()
		return err
	}

	egrp, gctx := errgroup.WithContext(ctx)
	egrp.Go(srv.Start)
	egrp.Go(func() error {
		<-gctx.Done()
		err := srv.Stop()
		cluster.Term()
		return err
	})
	return egrp.Wait()
}

func NewRunCmd(parentCmd *cobra.Command, parentVc *viper.Viper) (*cobra.Command, *viper.Viper) {
	rootCmd, vc := NewCommand(parentCmd, parentVc, "run", "Run validators in this process")
	rootCmd.Args = ArgsWithDefaultErrorFunc(cobra.NoArgs)

	flags := rootCmd.Flags()
	flags.StringP("config", "c", "", "Parsing configuration file")
	flags.IntP("validators", "n", 4, "Number of validators")
	flags.String("rpc_addr", "127.0.0.1:9080", "Listen ip-port of the HTTP API")
	flags.String("node_dir", ".goagree", "Data directory holding one database per validator")
	flags.String("db_type", "", "Database backend (goleveldb, mapdb)")
	flags.StringSlice("key_stores", nil, "KeyStore files of validators")
	flags.String("key_password", "", "Password for the KeyStore files")
	flags.String("log_level", "debug", "Global log level ("+logLevels+")")
	flags.String("console_level", "info", "Console log level ("+logLevels+")")
	flags.StringToString("mod_level", nil, "Set console log level for specific module ('mod'='level',...)")
	BindPFlags(vc, flags)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadRunConfig(vc)
		if err != nil {
			return err
		}
		modLevels, _ := cmd.Flags().GetStringToString("mod_level")
		logger, err := SetupLogger(cfg, modLevels)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Run(ctx, cfg, logger)
	}

	saveCmd := &cobra.Command{
		Use:   "save FILE",
		Short: "Save configuration",
		Args:  ArgsWithDefaultErrorFunc(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadRunConfig(vc)
			if err != nil {
				return err
			}
			cfg.KeyStorePass = ""
			if err := JsonPrettySaveFile(args[0], 0644, cfg); err != nil {
				return err
			}
			cmd.Println("Save configuration to", args[0])
			return nil
		},
	}
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().AddFlagSet(flags)
	return rootCmd, vc
}
