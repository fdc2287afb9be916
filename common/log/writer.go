package log

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

type WriterConfig struct {
	Filename   string `json:"filename" mapstructure:"filename"`
	MaxSize    int    `json:"maxsize" mapstructure:"maxsize"`
	MaxAge     int    `json:"maxage" mapstructure:"maxage"`
	MaxBackups int    `json:"maxbackups" mapstructure:"maxbackups"`
	LocalTime  bool   `json:"localtime" mapstructure:"localtime"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// NewWriter returns a size-rotated file writer.
func NewWriter(cfg *WriterConfig) (io.Writer, error) {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  cfg.LocalTime,
		Compress:   cfg.Compress,
	}, nil
}
