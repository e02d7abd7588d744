package main

import (
	"context"
	"strings"
	"sync"

	"stemd/internal/api"
	"stemd/internal/config"
	"stemd/internal/download"
	"stemd/internal/logging"
	"stemd/internal/queue"
	"stemd/internal/separation"
)

// commandContext lazily resolves config and the service facade shared by all
// subcommands.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	serviceOnce sync.Once
	store       *queue.Store
	service     *api.Service
	serviceErr  error
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

func (c *commandContext) ensureService(ctx context.Context) (*api.Service, error) {
	c.serviceOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.serviceErr = err
			return
		}
		store, err := queue.Open(ctx, cfg)
		if err != nil {
			c.serviceErr = err
			return
		}
		downloader := download.NewCLI(
			download.WithBinary(cfg.Download.Binary),
			download.WithFormat(cfg.Download.Format),
		)
		catalog := separation.NewCatalog(config.KnownModels())
		c.store = store
		c.service = api.NewService(cfg, store, downloader, catalog, logging.NewNop())
	})
	return c.service, c.serviceErr
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
}
