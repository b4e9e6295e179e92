// Package logging builds the zap logger shared by the client, repo and engine.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a sugared logger for level: "development" (debug, console),
// "production" (info, JSON) or "local" (example encoder, debug).
func New(level string) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch level {
	case "development":
		logger, err = zap.NewDevelopment()
	case "production", "":
		logger, err = zap.NewProduction()
	case "local":
		logger = zap.NewExample()
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Nop is used where no logger was injected.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
