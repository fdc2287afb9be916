package consensus

import (
	"time"

	"github.com/icon-project/goagree/common/errors"
)

const (
	SelectorRoundRobin         = "roundrobin"
	SelectorWeightedRoundRobin = "weighted"
)

type Config struct {
	TimeoutPropose   time.Duration `json:"timeout_propose" mapstructure:"timeout_propose"`
	TimeoutPrevote   time.Duration `json:"timeout_prevote" mapstructure:"timeout_prevote"`
	TimeoutPrecommit time.Duration `json:"timeout_precommit" mapstructure:"timeout_precommit"`
	// TimeoutMax caps the exponential growth of round timeouts.
	TimeoutMax time.Duration `json:"timeout_max" mapstructure:"timeout_max"`
	// TimeoutCommit is the pause between a commit and the next height.
	TimeoutCommit time.Duration `json:"timeout_commit" mapstructure:"timeout_commit"`

	Selector string `json:"selector" mapstructure:"selector"`
	// MaxTxsPerBlock of zero means no limit.
	MaxTxsPerBlock int `json:"max_txs_per_block" mapstructure:"max_txs_per_block"`

	FutureHeightBuffer int `json:"future_height_buffer" mapstructure:"future_height_buffer"`
	EventQueueSize     int `json:"event_queue_size" mapstructure:"event_queue_size"`
	CommitBuffer       int `json:"commit_buffer" mapstructure:"commit_buffer"`
}

func DefaultConfig() *Config {
	return &Config{
		TimeoutPropose:     time.Second,
		TimeoutPrevote:     time.Second,
		TimeoutPrecommit:   time.Second,
		TimeoutMax:         time.Minute,
		TimeoutCommit:      time.Second,
		Selector:           SelectorRoundRobin,
		MaxTxsPerBlock:     1000,
		FutureHeightBuffer: 256,
		EventQueueSize:     1024,
		CommitBuffer:       16,
	}
}

func (c *Config) Validate() error {
	if c.TimeoutPropose <= 0 || c.TimeoutPrevote <= 0 || c.TimeoutPrecommit <= 0 {
		return errors.FatalConfigError.Errorf("timeouts must be positive propose=%s prevote=%s precommit=%s",
			c.TimeoutPropose, c.TimeoutPrevote, c.TimeoutPrecommit)
	}
	if c.TimeoutMax < c.TimeoutPropose || c.TimeoutMax < c.TimeoutPrevote || c.TimeoutMax < c.TimeoutPrecommit {
		return errors.FatalConfigError.Errorf("timeout_max=%s is below a base timeout", c.TimeoutMax)
	}
	if c.TimeoutCommit < 0 {
		return errors.FatalConfigError.Errorf("negative timeout_commit=%s", c.TimeoutCommit)
	}
	if _, err := NewProposalSelector(c.Selector, 0); err != nil {
		return err
	}
	if c.MaxTxsPerBlock < 0 || c.FutureHeightBuffer < 0 {
		return errors.FatalConfigError.New("negative limit")
	}
	if c.EventQueueSize <= 0 || c.CommitBuffer <= 0 {
		return errors.FatalConfigError.New("queue sizes must be positive")
	}
	return nil
}

// txLimit is the max argument for TxSource.Candidates, negative for all.
func (c *Config) txLimit() int {
	if c.MaxTxsPerBlock == 0 {
		return -1
	}
	return c.MaxTxsPerBlock
}

// timeoutFor returns base doubled once per round, capped at TimeoutMax.
func (c *Config) timeoutFor(step Step, round int32) time.Duration {
	var base time.Duration
	switch step {
	case StepPropose:
		base = c.TimeoutPropose
	case StepPrevoting:
		base = c.TimeoutPrevote
	default:
		base = c.TimeoutPrecommit
	}
	d := base
	for i := int32(0); i < round; i++ {
		d *= 2
		if d >= c.TimeoutMax {
			return c.TimeoutMax
		}
	}
	return d
}
