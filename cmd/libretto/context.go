package main

import (
	"libretto/internal/catalog"
	"libretto/internal/config"
	"libretto/internal/identity"
	"libretto/internal/staging"
)

// commandContext carries lazily loaded configuration shared by subcommands.
type commandContext struct {
	configFlag *string

	cfg     *config.Config
	cfgPath string
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, resolvedPath, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.cfgPath = resolvedPath
	return cfg, nil
}

// withStaging opens the staging store for the duration of one command.
func (c *commandContext) withStaging(fn func(*staging.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := staging.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withCatalog opens the catalog store for the duration of one command.
func (c *commandContext) withCatalog(fn func(*catalog.SQLStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withIdentityAndCatalog opens both resolution-side stores, for merge.
func (c *commandContext) withIdentityAndCatalog(fn func(*identity.Store, *catalog.SQLStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	identities, err := identity.Open(cfg)
	if err != nil {
		return err
	}
	defer identities.Close()

	catalogStore, err := catalog.Open(cfg)
	if err != nil {
		return err
	}
	defer catalogStore.Close()

	return fn(identities, catalogStore)
}
