package log

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/evalphobia/logrus_fluent"
	"github.com/sirupsen/logrus"
)

const (
	HookVendorFluentd  = "fluentd"
	HookVendorLogstash = "logstash"

	defaultForwarderName  = "goagree"
	defaultForwarderLevel = "info"
)

// ForwarderConfig ships log entries to a collector. Address is a host:port
// with an optional tcp:// or udp:// scheme.
type ForwarderConfig struct {
	Vendor     string                 `json:"vendor" mapstructure:"vendor"`
	Address    string                 `json:"address" mapstructure:"address"`
	Level      string                 `json:"level" mapstructure:"level"`
	Name       string                 `json:"name" mapstructure:"name"`
	TimeFormat string                 `json:"time_format,omitempty" mapstructure:"time_format"`
	Options    map[string]interface{} `json:"options,omitempty" mapstructure:"options"`
}

func (c *ForwarderConfig) fillDefaults() {
	if c.Level == "" {
		c.Level = defaultForwarderLevel
	}
	if c.Name == "" {
		c.Name = defaultForwarderName
	}
	if c.TimeFormat == "" {
		c.TimeFormat = time.RFC3339Nano
	}
}

// UnmarshalByOptions decodes the vendor specific Options into v.
func (c *ForwarderConfig) UnmarshalByOptions(v interface{}) error {
	if len(c.Options) == 0 {
		return nil
	}
	b, err := json.Marshal(c.Options)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (c *ForwarderConfig) Endpoint() (network string, host string, port int, err error) {
	addr := c.Address
	if !strings.Contains(addr, "://") {
		addr = "tcp://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", 0, err
	}
	switch u.Scheme {
	case "tcp", "udp":
	default:
		return "", "", 0, fmt.Errorf("unsupported network %q", u.Scheme)
	}
	host, ps, err := net.SplitHostPort(u.Host)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid address %q: %v", c.Address, err)
	}
	if port, err = strconv.Atoi(ps); err != nil {
		return "", "", 0, fmt.Errorf("invalid port %q", ps)
	}
	return u.Scheme, host, port, nil
}

// HookLevels returns the level of the config and every more severe one.
func (c *ForwarderConfig) HookLevels() ([]logrus.Level, error) {
	lv, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	var lvs []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= logrus.Level(lv) {
			lvs = append(lvs, l)
		}
	}
	return lvs, nil
}

// forwardHook adds the time in nanoseconds and the source position to the
// entry before handing it to the vendor hook.
type forwardHook struct {
	h   logrus.Hook
	lvs []logrus.Level
}

func (h *forwardHook) Levels() []logrus.Level {
	return h.lvs
}

func (h *forwardHook) Fire(e *logrus.Entry) error {
	d := e.Data
	defer func() {
		e.Data = d
	}()
	e.Data = make(logrus.Fields, len(d)+3)
	for k, v := range d {
		e.Data[k] = v
	}
	e.Data["logtime"] = e.Time.UnixNano()
	if e.Caller != nil {
		if _, ok := e.Data[FieldKeyModule]; !ok {
			e.Data[FieldKeyModule] = getPackageName(e.Caller.Function)
		}
		e.Data["src"] = fmt.Sprintf("%s:%d", path.Base(e.Caller.File), e.Caller.Line)
	}
	return h.h.Fire(e)
}

var hookCreators = map[string]func(c *ForwarderConfig, lvs []logrus.Level) (logrus.Hook, error){
	HookVendorFluentd:  newFluentHook,
	HookVendorLogstash: newLogstashHook,
}

func newForwardHook(c *ForwarderConfig) (logrus.Hook, error) {
	c.fillDefaults()
	create, ok := hookCreators[c.Vendor]
	if !ok {
		return nil, fmt.Errorf("not supported forwarder %s", c.Vendor)
	}
	lvs, err := c.HookLevels()
	if err != nil {
		return nil, err
	}
	h, err := create(c, lvs)
	if err != nil {
		return nil, err
	}
	return &forwardHook{h: h, lvs: lvs}, nil
}

// AddForwarder attaches a forwarder to the global logger.
func AddForwarder(c *ForwarderConfig) error {
	h, err := newForwardHook(c)
	if err != nil {
		return err
	}
	globalLogger.AddHook(h)
	return nil
}

func newFluentHook(c *ForwarderConfig, lvs []logrus.Level) (logrus.Hook, error) {
	network, host, port, err := c.Endpoint()
	if err != nil {
		return nil, err
	}
	opt := struct {
		Timeout      time.Duration `json:"timeout"`
		WriteTimeout time.Duration `json:"write_timeout"`
		RetryWait    int           `json:"retry_wait"`
		MaxRetry     int           `json:"max_retry"`
	}{
		Timeout:   3 * time.Second,
		RetryWait: 500,
		MaxRetry:  13,
	}
	if err = c.UnmarshalByOptions(&opt); err != nil {
		return nil, err
	}
	return logrus_fluent.NewWithConfig(logrus_fluent.Config{
		DefaultTag:          c.Name,
		FluentNetwork:       network,
		Host:                host,
		Port:                port,
		LogLevels:           lvs,
		Timeout:             opt.Timeout,
		WriteTimeout:        opt.WriteTimeout,
		RetryWait:           opt.RetryWait,
		MaxRetry:            opt.MaxRetry,
		DefaultMessageField: "message",
		SubSecondPrecision:  true,
	})
}

func newLogstashHook(c *ForwarderConfig, lvs []logrus.Level) (logrus.Hook, error) {
	network, host, port, err := c.Endpoint()
	if err != nil {
		return nil, err
	}
	h, err := logrustash.NewHook(network, net.JoinHostPort(host, strconv.Itoa(port)), c.Name)
	if err != nil {
		return nil, err
	}
	h.TimeFormat = c.TimeFormat
	return h, nil
}
