package node

import (
	"path"
	"path/filepath"

	"github.com/icon-project/goagree/chain"
	"github.com/icon-project/goagree/common/db"
	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/consensus"
)

type Config struct {
	// BaseDir holds one database directory per validator. Relative paths
	// are resolved against FilePath.
	BaseDir   string            `json:"node_dir"`
	Chain     chain.Config      `json:"chain"`
	Consensus *consensus.Config `json:"consensus"`

	FilePath string `json:"-"` // absolute path
}

func DefaultConfig() *Config {
	return &Config{
		BaseDir: ".goagree",
		Chain: chain.Config{
			DBType:     string(db.GoLevelDBBackend),
			TxPoolSize: chain.DefaultTxPoolSize,
		},
		Consensus: consensus.DefaultConfig(),
	}
}

func (c *Config) Validate() error {
	if c.Consensus == nil {
		c.Consensus = consensus.DefaultConfig()
	}
	if err := c.Consensus.Validate(); err != nil {
		return err
	}
	if c.Chain.DBType == "" {
		c.Chain.DBType = string(db.MapDBBackend)
	}
	if c.Chain.DBType != string(db.MapDBBackend) && c.BaseDir == "" {
		return errors.FatalConfigError.Errorf("node_dir is required for db_type=%s", c.Chain.DBType)
	}
	if c.Chain.MaxTxsPerBlock == 0 {
		c.Chain.MaxTxsPerBlock = c.Consensus.MaxTxsPerBlock
	}
	return nil
}

func (c *Config) ResolveAbsolute(targetPath string) string {
	return ResolveAbsolute(c.FilePath, targetPath)
}

func ResolveAbsolute(baseFile, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	if baseFile == "" {
		r, _ := filepath.Abs(targetPath)
		return r
	}
	if !filepath.IsAbs(baseFile) {
		baseFile, _ = filepath.Abs(baseFile)
	}
	return filepath.Clean(path.Join(filepath.Dir(baseFile), targetPath))
}
