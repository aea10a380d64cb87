package app

import (
	"strings"

	"github.com/wardenhq/warden/pkg/logger"
)

// ConfigureLogging initialises the process logger from the configured
// server.log_level. Blank means info.
func ConfigureLogging(level string) error {
	if level = strings.TrimSpace(level); level == "" {
		level = "info"
	}
	return logger.Init(level)
}
