// accolade/cmd/accoladed/deps.go

package main

import (
	"context"
	"errors"
	"fmt"

	"rgehrsitz/accolade/pkg/archive"
	"rgehrsitz/accolade/pkg/cache"
	"rgehrsitz/accolade/pkg/config"
	"rgehrsitz/accolade/pkg/identity"
	"rgehrsitz/accolade/pkg/ledger"
	"rgehrsitz/accolade/pkg/rules"
	"rgehrsitz/accolade/pkg/runtime"
	"rgehrsitz/accolade/pkg/transport"
)

// dependencies holds the stores and clients an engine runs against.
type dependencies struct {
	Ledger    *ledger.SQLLedger
	Archive   *archive.SQLArchive
	Cache     cache.Cache
	Directory identity.Directory
	Transport transport.Transport

	closers []func() error
}

func (d *dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

// openStores opens the ledger and archive databases.
func openStores(cfg *config.Config) (*dependencies, error) {
	d := &dependencies{}
	var err error
	if d.Ledger, err = ledger.Open(cfg.Database.LedgerURL); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	d.closers = append(d.closers, d.Ledger.Close)

	if d.Archive, err = archive.Open(cfg.Database.ArchiveURL); err != nil {
		d.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	d.closers = append(d.closers, d.Archive.Close)
	return d, nil
}

// setupDependencies opens everything the engine needs. The transport is
// only connected when withTransport is set.
func setupDependencies(ctx context.Context, cfg *config.Config, withTransport bool) (*dependencies, error) {
	d, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*dependencies, error) {
		d.Close()
		return nil, err
	}

	if d.Cache, err = newCache(ctx, cfg.Cache); err != nil {
		return fail(fmt.Errorf("open cache: %w", err))
	}
	d.closers = append(d.closers, d.Cache.Close)

	d.Directory = newDirectory(cfg.Identity)

	if withTransport {
		if d.Transport, err = newTransport(ctx, cfg.Transport); err != nil {
			return fail(fmt.Errorf("connect transport: %w", err))
		}
		d.closers = append(d.closers, d.Transport.Close)
	}
	return d, nil
}

func newCache(ctx context.Context, c config.CacheConfig) (cache.Cache, error) {
	switch c.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, c.Redis.Address, c.Redis.Password, c.Redis.DB)
	case "bolt":
		return cache.NewBoltCache(c.Bolt.Path)
	case "memory":
		return cache.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
}

func newDirectory(c config.IdentityConfig) identity.Directory {
	if c.URL != "" {
		return identity.NewClient(c.URL, c.Timeout)
	}
	users := make([]identity.User, 0, len(c.StaticUsers))
	for _, u := range c.StaticUsers {
		users = append(users, identity.User{Username: u})
	}
	return identity.NewStatic(users...)
}

func newTransport(ctx context.Context, c config.TransportConfig) (transport.Transport, error) {
	switch c.Backend {
	case "redis":
		return transport.NewRedis(ctx, c.Redis.Address, c.Redis.Password, c.Redis.DB, c.Channels)
	case "mqtt":
		return transport.NewMQTT(transport.MQTTOptions{
			Broker:   c.MQTT.Broker,
			ClientID: c.MQTT.ClientID,
			Username: c.MQTT.Username,
			Password: c.MQTT.Password,
			Topics:   c.Channels,
			QoS:      c.MQTT.QoS,
		})
	}
	return nil, fmt.Errorf("unknown transport backend %q", c.Backend)
}

func (d *dependencies) env(cfg *config.Config) *rules.Env {
	resolver := identity.NewResolver(d.Directory, cfg.Engine.EmailDomain,
		cfg.Engine.IDProviderHostname, cfg.Engine.DistgitHostname)
	return &rules.Env{
		Ledger:      d.Ledger,
		Directory:   d.Directory,
		Identity:    resolver,
		Archive:     d.Archive,
		Counter:     rules.NewCounter(d.Cache),
		EmailDomain: cfg.Engine.EmailDomain,
	}
}

func newEngine(cfg *config.Config, d *dependencies) (*runtime.Engine, error) {
	return runtime.NewEngine(runtime.Options{
		RulesDir:         cfg.Rules.Directory,
		Workers:          cfg.Engine.Workers,
		WaitForArchive:   cfg.Engine.WaitForArchive,
		ArchiveWaitDelay: cfg.Engine.ArchiveWaitDelay,
		RecordEvents:     cfg.Engine.RecordEvents,
		IssuerID:         cfg.Engine.Issuer,
		NotifyPrefix:     cfg.Transport.PublishPrefix,
	}, d.env(cfg), d.Transport)
}
