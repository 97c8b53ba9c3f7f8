package config

import (
	"fmt"
	"strings"
)

// Validate verifies that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if c.Pipeline.HeartbeatTimeout > 0 && c.Pipeline.HeartbeatTimeout <= c.Pipeline.HeartbeatInterval {
		problems = append(problems, "pipeline.heartbeat_timeout must exceed pipeline.heartbeat_interval")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
