package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Geniuskaa/kids_competition/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New writes JSON to the configured file and console lines to stdout. Both cores share
// the returned level, so changing it affects the two outputs at once.
func New(conf config.Logging) (*zap.Logger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if conf.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(conf.Level)); err != nil {
			return nil, atom, fmt.Errorf("logging.New failed: %w", err)
		}
		atom.SetLevel(lvl)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC1123Z)
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), atom),
	}

	if conf.File != "" {
		if err := os.MkdirAll(filepath.Dir(conf.File), 0o755); err != nil {
			return nil, atom, fmt.Errorf("logging.New failed: %w", err)
		}
		file, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, atom, fmt.Errorf("logging.New failed: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), atom))
	}

	return zap.New(zapcore.NewTee(cores...)), atom, nil
}
