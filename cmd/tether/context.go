package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tether/internal/config"
	"tether/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the CLI logger. Daemon invocations also log to a
// timestamped file in the log directory; one-shot commands log to stdout
// only.
func (c *commandContext) newLogger(cfg *config.Config, toFile bool) (*slog.Logger, error) {
	outputs := []string{"stdout"}
	errOutputs := []string{"stderr"}
	if toFile && cfg.Paths.LogDir != "" {
		runID := time.Now().UTC().Format("20060102T150405Z")
		logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("tether-%s.log", runID))
		outputs = append(outputs, logPath)
		errOutputs = append(errOutputs, logPath)
	}
	return logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputs,
		ErrorOutputPaths: errOutputs,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
