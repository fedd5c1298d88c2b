package main

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"semefo/internal/api"
	"semefo/internal/config"
	"semefo/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// daemonClient returns an API client when a daemon answers on the configured
// bind address, or nil otherwise.
func (c *commandContext) daemonClient(ctx context.Context) *api.Client {
	cfg, err := c.ensureConfig()
	if err != nil || cfg.Paths.APIBind == "" {
		return nil
	}
	client := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err := client.Health(ctx); err != nil {
		return nil
	}
	return client
}

// withStore opens the queue database for commands that work without a daemon.
func (c *commandContext) withStore(fn func(*queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		if errors.Is(err, queue.ErrSchemaMismatch) {
			return errors.New("queue database schema is out of date; move it aside and restart the daemon")
		}
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
