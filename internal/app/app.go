// Package app assembles the store, ledger, planners and refresh engine from
// a Config. The CLI and the HTTP server share one App per process.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/config"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/engine"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/keystore"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/ledger"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/live"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/notify"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/store"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/today"
)

// App holds every long-lived collaborator.
type App struct {
	Config   *config.Config
	Location *time.Location
	Now      func() time.Time

	Store   *store.Store
	Keys    keystore.Store
	OpKeys  *opkey.Registry
	Ledger  *ledger.Service
	Planner *notify.Planner
	Center  notify.Center
	Live    *live.Service
	Surface live.Surface
	Engine  *engine.Engine

	closers []func() error
}

// Option configures Open.
type Option func(*options)

type options struct {
	now     func() time.Time
	center  notify.Center
	surface live.Surface
	keys    keystore.Store
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCenter sets the notification center. Default: in-memory.
func WithCenter(c notify.Center) Option {
	return func(o *options) { o.center = c }
}

// WithSurface sets the live surface. Default: in-memory.
func WithSurface(s live.Surface) Option {
	return func(o *options) { o.surface = s }
}

// WithKeyStore sets the TTL key store, bypassing REDIS_URL.
func WithKeyStore(k keystore.Store) Option {
	return func(o *options) { o.keys = k }
}

// Open builds an App. The key store is Redis when REDIS_URL is set and
// in-memory otherwise.
func Open(cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Location: loc, Now: o.now}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.DBPath, err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	switch {
	case o.keys != nil:
		a.Keys = o.keys
	case cfg.RedisURL != "":
		r, err := keystore.NewRedis(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Keys = r
		a.closers = append(a.closers, r.Close)
		slog.Info("using redis key store", "prefix", cfg.RedisPrefix)
	default:
		a.Keys = keystore.NewMemoryWithClock(o.now)
	}

	a.Center = o.center
	if a.Center == nil {
		a.Center = notify.NewMemoryCenter()
	}
	a.Surface = o.surface
	if a.Surface == nil {
		a.Surface = live.NewMemorySurface()
	}

	a.OpKeys = opkey.NewRegistry(a.Keys, opkey.WithTTL(cfg.OperationKeyTTL))
	a.Ledger = ledger.New(st, ledger.WithClock(o.now))
	a.Planner = notify.NewPlanner(a.Keys, a.NotifyOptions())
	a.Live = live.NewService(st, a.Ledger, a.Center, a.LiveOptions(), o.now)
	a.Engine = engine.New(st, a.Planner, a.Center, a.Live, a.TodayOptions(),
		engine.WithClock(o.now), engine.WithSurface(a.Surface))
	return a, nil
}

// TodayOptions derives aggregator options from the config.
func (a *App) TodayOptions() today.Options {
	return today.Options{
		ThresholdDays: a.Config.StockThresholdDays,
		UpcomingDays:  a.Config.UpcomingDays,
		Location:      a.Location,
	}
}

// NotifyOptions derives planner options from the config.
func (a *App) NotifyOptions() notify.Options {
	return notify.Options{
		Level:           notify.Level(a.Config.NotificationLevel),
		Horizon:         a.Config.NotifyHorizon,
		IntakeTolerance: a.Config.IntakeTolerance,
		Cooldown:        a.Config.StockAlertCooldown,
		MaxPending:      a.Config.MaxPending,
		SnoozeMinutes:   a.Config.SnoozeMinutes,
		ThresholdDays:   a.Config.StockThresholdDays,
		Location:        a.Location,
	}
}

// LiveOptions derives the live window from the config.
func (a *App) LiveOptions() live.Options {
	return live.Options{Lead: a.Config.LiveLead, Grace: a.Config.LiveGrace, Location: a.Location}
}

// Close stops the engine and releases resources in reverse order.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
