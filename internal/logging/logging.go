// Package logging builds the process-wide structured logger used by every
// TAO server and client binary. Grounded on the teacher's
// common/go/logging, generalized from a single hardcoded stderr/console
// sink to a configurable one: a long-running acquisition server and a
// short-lived inspector CLI want different defaults (the server logs to a
// file so a restart doesn't lose the last frames before a crash, the CLI
// wants colored console output), so encoding and output paths are now
// config-driven instead of fixed.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// EncodingConsole renders human-readable lines with a colored level field
// when attached to a terminal; EncodingJSON renders one JSON object per
// line for log shipping.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// Config is the configuration for the logging subsystem.
type Config struct {
	Level zapcore.Level `yaml:"level"`
	// Encoding selects EncodingConsole (default) or EncodingJSON.
	Encoding string `yaml:"encoding"`
	// OutputPaths and ErrorOutputPaths are zap sink URLs/paths; "stderr"
	// and "stdout" are recognized specially, anything else is treated as
	// a file path. Both default to []string{"stderr"} when empty.
	OutputPaths      []string `yaml:"output_paths"`
	ErrorOutputPaths []string `yaml:"error_output_paths"`
}

// Init builds a *zap.SugaredLogger plus the AtomicLevel controlling it, so
// callers (e.g. a CLI flag or an online "set-log-level" knob) can adjust
// verbosity without rebuilding the logger.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = EncodingConsole
	}
	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}
	errorOutputPaths := cfg.ErrorOutputPaths
	if len(errorOutputPaths) == 0 {
		errorOutputPaths = []string{"stderr"}
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	switch encoding {
	case EncodingJSON:
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	default:
		if attachedToTerminal(outputPaths) {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: errorOutputPaths,
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), config.Level, nil
}

// attachedToTerminal reports whether any of the console sinks named in
// paths is a terminal, which is when colored level names are worth
// emitting; a server logging to a plain file never qualifies.
func attachedToTerminal(paths []string) bool {
	for _, p := range paths {
		switch p {
		case "stderr":
			if term.IsTerminal(int(os.Stderr.Fd())) {
				return true
			}
		case "stdout":
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return true
			}
		}
	}
	return false
}
