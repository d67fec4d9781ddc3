package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a development logger when dev is set and a JSON production logger
// otherwise. An empty level keeps the preset's default.
func New(dev bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}
