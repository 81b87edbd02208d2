// Package syncer runs fetch-transform-persist cycles against the directory, one at a time, and
// schedules them on a fixed period.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"directory-sync/backend/internal/directory/client"
	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/telemetry"
	teldomain "directory-sync/backend/internal/telemetry/domain"
)

const (
	instrumentationName = "directory-sync/backend/internal/syncer"
	waitPollInterval    = 20 * time.Millisecond
)

var (
	// ErrDisabled is returned by Start when the sync feature is turned off.
	ErrDisabled = errors.New("sync: directory sync is disabled")
	// ErrIncompleteFetch means pagination stopped early; the partial set is not persisted.
	ErrIncompleteFetch = errors.New("sync: incomplete fetch")
	// ErrInProgress is returned when a sync is already running. The trigger is dropped, not queued.
	ErrInProgress = errors.New("sync: a sync is already in progress")
)

// Directory is the remote paged directory.
type Directory interface {
	HasCredentials() bool
	FetchAllPages(ctx context.Context, initialPath string) domain.FetchResult
	TestConnection(ctx context.Context) bool
}

// RecordStore persists synced records and the sync status log.
type RecordStore interface {
	SetRecords(ctx context.Context, kind domain.Kind, records []domain.Record) error
	Clear(ctx context.Context, kind domain.Kind) error
	AppendSyncStatus(ctx context.Context, st domain.SyncStatus) (domain.SyncStatus, error)
	SyncStatus(ctx context.Context) (*domain.SyncStatus, error)
}

// Options configures an Orchestrator. Zero values are usable.
type Options struct {
	Enabled bool
	// Emitter receives one event per finished sync. May be nil.
	Emitter telemetry.EventEmitter
	// TracerProvider and MeterProvider default to the global providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Enabled        bool               `json:"enabled" yaml:"enabled"`
	HasCredentials bool               `json:"hasCredentials" yaml:"hasCredentials"`
	InProgress     bool               `json:"inProgress" yaml:"inProgress"`
	Scheduled      bool               `json:"scheduled" yaml:"scheduled"`
	LastSync       *domain.SyncStatus `json:"lastSync" yaml:"lastSync"`
}

// Orchestrator coordinates directory syncs. At most one SyncAll runs at a time.
type Orchestrator struct {
	dir     Directory
	store   RecordStore
	enabled bool
	emitter telemetry.EventEmitter

	running atomic.Bool

	mu   sync.Mutex
	stop chan struct{}

	tracer   trace.Tracer
	runs     metric.Int64Counter
	records  metric.Int64Counter
	duration metric.Float64Histogram

	now func() time.Time
}

// New returns an orchestrator that reads from dir and writes to store.
func New(dir Directory, store RecordStore, opts Options) *Orchestrator {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	o := &Orchestrator{
		dir:     dir,
		store:   store,
		enabled: opts.Enabled,
		emitter: opts.Emitter,
		tracer:  tp.Tracer(instrumentationName),
		now:     time.Now,
	}
	o.initInstruments(mp.Meter(instrumentationName))
	return o
}

func (o *Orchestrator) initInstruments(meter metric.Meter) {
	var err error
	if o.runs, err = meter.Int64Counter("directory_sync.runs",
		metric.WithDescription("Finished sync runs by outcome.")); err != nil {
		log.Printf("sync: runs counter: %v", err)
		o.runs = noop.Int64Counter{}
	}
	if o.records, err = meter.Int64Counter("directory_sync.records",
		metric.WithDescription("Records persisted per resource kind.")); err != nil {
		log.Printf("sync: records counter: %v", err)
		o.records = noop.Int64Counter{}
	}
	if o.duration, err = meter.Float64Histogram("directory_sync.duration",
		metric.WithDescription("Wall-clock duration of a sync run."), metric.WithUnit("ms")); err != nil {
		log.Printf("sync: duration histogram: %v", err)
		o.duration = noop.Float64Histogram{}
	}
}

// Enabled reports whether periodic sync is turned on.
func (o *Orchestrator) Enabled() bool {
	return o.enabled
}

// InProgress reports whether a SyncAll is running.
func (o *Orchestrator) InProgress() bool {
	return o.running.Load()
}

// SyncResource fetches every page of kind, keeps the projected fields the source defined, and hands the
// result to the store. A complete fetch with no records clears the stored set. An incomplete fetch
// persists nothing and returns ErrIncompleteFetch.
func (o *Orchestrator) SyncResource(ctx context.Context, kind domain.Kind) ([]domain.Record, error) {
	ctx, span := o.tracer.Start(ctx, "directory_sync.resource", trace.WithAttributes(attribute.String("kind", string(kind))))
	defer span.End()

	res := o.dir.FetchAllPages(ctx, ResourcePath(kind))
	span.SetAttributes(attribute.Int("pages", res.Pages), attribute.Int("fetched", len(res.Records)))
	if !res.Complete {
		cause := res.Err
		if cause == nil {
			cause = errors.New("pagination stopped early")
		}
		err := fmt.Errorf("%w: %s after %d pages: %w", ErrIncompleteFetch, kind, res.Pages, cause)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]domain.Record, 0, len(res.Records))
	for _, raw := range res.Records {
		rec := Project(kind, raw)
		if rec.ID() == "" {
			log.Printf("sync: skipping %s record without id", kind)
			continue
		}
		out = append(out, rec)
	}
	var err error
	if len(out) == 0 {
		// The directory has no records of this kind left.
		err = o.store.Clear(ctx, kind)
	} else {
		err = o.store.SetRecords(ctx, kind, out)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("sync: persist %s: %w", kind, err)
	}
	o.records.Add(ctx, int64(len(out)), metric.WithAttributes(attribute.String("kind", string(kind))))
	return out, nil
}

// SyncAll probes the directory, then syncs users and devices concurrently and appends a SyncStatus
// whatever the outcome. A call made while another is running returns ErrInProgress and changes nothing.
func (o *Orchestrator) SyncAll(ctx context.Context, trigger string) (*domain.SyncStatus, error) {
	if !o.running.CompareAndSwap(false, true) {
		log.Printf("sync: %s trigger dropped, a sync is already in progress", trigger)
		return nil, ErrInProgress
	}
	defer o.running.Store(false)

	start := o.now()
	ctx, span := o.tracer.Start(ctx, "directory_sync.sync_all", trace.WithAttributes(attribute.String("trigger", trigger)))
	defer span.End()

	var usersCount, devicesCount int
	err := o.probe(ctx)
	if err == nil {
		var g errgroup.Group
		g.Go(func() error {
			recs, err := o.SyncResource(ctx, domain.KindUsers)
			usersCount = len(recs)
			return err
		})
		g.Go(func() error {
			recs, err := o.SyncResource(ctx, domain.KindDevices)
			devicesCount = len(recs)
			return err
		})
		err = g.Wait()
	}

	elapsed := o.now().Sub(start)
	st := domain.SyncStatus{
		LastSyncTime: start,
		UsersCount:   usersCount,
		DevicesCount: devicesCount,
		Success:      err == nil,
		DurationMs:   elapsed.Milliseconds(),
	}
	if err != nil {
		st.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("sync: %s sync failed after %dms: %v", trigger, st.DurationMs, err)
	} else {
		log.Printf("sync: %s sync finished in %dms: %d users, %d devices", trigger, st.DurationMs, usersCount, devicesCount)
	}

	saved, appendErr := o.store.AppendSyncStatus(ctx, st)
	if appendErr != nil {
		log.Printf("sync: %v", appendErr)
		saved = st
	}

	outcome := attribute.Bool("success", st.Success)
	o.runs.Add(ctx, 1, metric.WithAttributes(outcome, attribute.String("trigger", trigger)))
	o.duration.Record(ctx, float64(st.DurationMs), metric.WithAttributes(outcome))
	telemetry.EmitAsync(o.emitter, o.event(trigger, saved))

	return &saved, err
}

// probe fails with client.ErrConnectivity when the directory does not answer a lightweight call.
func (o *Orchestrator) probe(ctx context.Context) error {
	if !o.dir.TestConnection(ctx) {
		return fmt.Errorf("%w: directory API is unreachable", client.ErrConnectivity)
	}
	return nil
}

func (o *Orchestrator) event(trigger string, st domain.SyncStatus) *teldomain.SyncEvent {
	eventType := teldomain.EventSyncCompleted
	if !st.Success {
		eventType = teldomain.EventSyncFailed
	}
	return &teldomain.SyncEvent{
		ID:           uuid.New().String(),
		EventType:    eventType,
		Source:       teldomain.SourceDirectorySync,
		Trigger:      trigger,
		Success:      st.Success,
		UsersCount:   st.UsersCount,
		DevicesCount: st.DevicesCount,
		DurationMs:   st.DurationMs,
		Error:        st.Error,
		CreatedAt:    o.now().UTC(),
	}
}

// TriggerManualSync runs one SyncAll on behalf of a caller. The run is not cancelled when ctx is.
// Missing credentials fail with client.ErrConfiguration before anything is recorded.
func (o *Orchestrator) TriggerManualSync(ctx context.Context) (*domain.SyncStatus, error) {
	if !o.dir.HasCredentials() {
		return nil, fmt.Errorf("%w: directory credentials are not configured", client.ErrConfiguration)
	}
	return o.SyncAll(context.WithoutCancel(ctx), teldomain.TriggerManual)
}

// Start runs one sync immediately and then every interval, replacing any previous schedule.
// It returns ErrDisabled or client.ErrConfiguration, after logging them, when sync cannot run.
func (o *Orchestrator) Start(interval time.Duration) error {
	if !o.enabled {
		log.Printf("sync: %v; periodic sync not started", ErrDisabled)
		return ErrDisabled
	}
	if !o.dir.HasCredentials() {
		err := fmt.Errorf("%w: tenant id, client id and client secret are required", client.ErrConfiguration)
		log.Printf("sync: %v; periodic sync not started", err)
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("sync: interval must be positive, got %s", interval)
	}

	stop := make(chan struct{})
	o.mu.Lock()
	if o.stop != nil {
		close(o.stop)
	}
	o.stop = stop
	o.mu.Unlock()

	log.Printf("sync: scheduling directory sync every %s", interval)
	go o.loop(interval, stop)
	return nil
}

func (o *Orchestrator) loop(interval time.Duration, stop <-chan struct{}) {
	o.runScheduled(teldomain.TriggerStartup)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.runScheduled(teldomain.TriggerScheduled)
		case <-stop:
			return
		}
	}
}

// runScheduled runs SyncAll with a fresh context; SyncAll already logs the outcome.
func (o *Orchestrator) runScheduled(trigger string) {
	_, _ = o.SyncAll(context.Background(), trigger)
}

// Stop cancels the schedule. An in-flight sync is not interrupted.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stop != nil {
		close(o.stop)
		o.stop = nil
	}
}

// Wait blocks until no SyncAll is running or ctx is done. It reports whether the orchestrator went idle.
// Stop does not wait for a running sync; call Wait before closing the store under it.
func (o *Orchestrator) Wait(ctx context.Context) bool {
	t := time.NewTicker(waitPollInterval)
	defer t.Stop()
	for o.InProgress() {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}
	return true
}

// Scheduled reports whether a periodic schedule is active.
func (o *Orchestrator) Scheduled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stop != nil
}

// Status reads configuration and the latest recorded sync. It never fails; a store error leaves LastSync nil.
func (o *Orchestrator) Status(ctx context.Context) Status {
	st := Status{
		Enabled:        o.enabled,
		HasCredentials: o.dir.HasCredentials(),
		InProgress:     o.running.Load(),
		Scheduled:      o.Scheduled(),
	}
	last, err := o.store.SyncStatus(ctx)
	if err != nil {
		log.Printf("sync: read status: %v", err)
		return st
	}
	st.LastSync = last
	return st
}
