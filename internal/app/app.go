// Package app builds the component graph shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"directory-sync/backend/internal/api"
	"directory-sync/backend/internal/audit"
	auditrepo "directory-sync/backend/internal/audit/repository"
	"directory-sync/backend/internal/config"
	"directory-sync/backend/internal/directory/client"
	"directory-sync/backend/internal/merge"
	"directory-sync/backend/internal/override"
	"directory-sync/backend/internal/store"
	"directory-sync/backend/internal/syncer"
	"directory-sync/backend/internal/telemetry"
)

// Options carries the optional telemetry sinks. Zero values fall back to the global providers and no events.
type Options struct {
	Emitter        telemetry.EventEmitter
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Seed overrides the config's SEED_OVERRIDES when non-nil.
	Seed *bool
}

// App owns every long-lived component. Close releases the database.
type App struct {
	Config       *config.Config
	Store        *store.Store
	Audit        *audit.Logger
	Overrides    *override.Store
	View         *merge.View
	Client       *client.Client
	Orchestrator *syncer.Orchestrator
	Service      *api.Service
}

// New opens the database at cfg.DatabasePath() and wires the components. The orchestrator is not started.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	auditLogger := audit.NewLogger(auditrepo.NewSQLiteRepository(st.DB()))
	overrides := override.NewStore(auditLogger)
	view := merge.NewView(st, overrides, language.English)
	overrides.SetIdentityIndex(view)

	seed := cfg.SeedOverrides
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	if seed {
		overrides.SeedIfEmpty(ctx)
	}

	dir := client.New(client.Config{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL(),
		Scopes:       []string{cfg.Scope},
		BaseURL:      cfg.APIBaseURL,
		PageDelay:    cfg.PageDelay(),
		Timeout:      cfg.RequestTimeout(),
	})
	orch := syncer.New(dir, st, syncer.Options{
		Enabled:        cfg.SyncEnabled,
		Emitter:        opts.Emitter,
		TracerProvider: opts.TracerProvider,
		MeterProvider:  opts.MeterProvider,
	})

	return &App{
		Config:       cfg,
		Store:        st,
		Audit:        auditLogger,
		Overrides:    overrides,
		View:         view,
		Client:       dir,
		Orchestrator: orch,
		Service:      api.NewService(view, overrides, orch, st, auditLogger),
	}, nil
}

// StartSync schedules periodic syncs when enabled. A disabled or unconfigured sync is logged once by the
// orchestrator and is not an error for the caller.
func (a *App) StartSync() error {
	err := a.Orchestrator.Start(a.Config.SyncInterval())
	if err == nil || errors.Is(err, syncer.ErrDisabled) || errors.Is(err, client.ErrConfiguration) {
		return nil
	}
	return fmt.Errorf("app: start sync: %w", err)
}

// SyncDrainTimeout bounds how long Close waits for a running sync before closing the database.
const SyncDrainTimeout = 30 * time.Second

// Close stops scheduling, waits up to SyncDrainTimeout for a running sync to record its outcome, and
// closes the database.
func (a *App) Close() error {
	a.Orchestrator.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), SyncDrainTimeout)
	defer cancel()
	if !a.Orchestrator.Wait(ctx) {
		log.Printf("app: sync still running after %s, closing the store anyway", SyncDrainTimeout)
	}
	return a.Store.Close()
}
