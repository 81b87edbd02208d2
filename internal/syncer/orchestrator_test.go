package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directory-sync/backend/internal/directory/client"
	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/store"
	teldomain "directory-sync/backend/internal/telemetry/domain"
)

// fakeDirectory serves canned fetch results keyed by resource kind.
type fakeDirectory struct {
	mu          sync.Mutex
	results     map[domain.Kind]domain.FetchResult
	reachable   bool
	credentials bool
	fetches     atomic.Int32

	// block, when set, holds users fetches until closed; entered is signalled first.
	block   chan struct{}
	entered chan struct{}
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		results:     map[domain.Kind]domain.FetchResult{},
		reachable:   true,
		credentials: true,
	}
}

func (f *fakeDirectory) set(kind domain.Kind, res domain.FetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[kind] = res
}

func (f *fakeDirectory) HasCredentials() bool { return f.credentials }

func (f *fakeDirectory) TestConnection(context.Context) bool { return f.reachable }

func (f *fakeDirectory) FetchAllPages(_ context.Context, path string) domain.FetchResult {
	f.fetches.Add(1)
	kind := domain.KindUsers
	if strings.HasPrefix(path, "/devices") {
		kind = domain.KindDevices
	}
	if kind == domain.KindUsers && f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[kind]
	if !ok {
		return domain.FetchResult{Complete: true}
	}
	return res
}

type captureEmitter struct {
	events chan *teldomain.SyncEvent
}

func (c *captureEmitter) Emit(_ context.Context, e *teldomain.SyncEvent) error {
	c.events <- e
	return nil
}

func complete(records ...domain.Record) domain.FetchResult {
	return domain.FetchResult{Records: records, Complete: true, Pages: 1}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seededDirectory() *fakeDirectory {
	dir := newFakeDirectory()
	dir.set(domain.KindUsers, complete(
		domain.Record{"id": "u1", "displayName": "Alice", "mail": "alice@x.com", "accountEnabled": true},
		domain.Record{"id": "u2", "displayName": "Bob", "jobTitle": "Eng", "accountEnabled": false},
	))
	dir.set(domain.KindDevices, complete(
		domain.Record{"id": "d1", "displayName": "Laptop", "operatingSystem": "Windows"},
	))
	return dir
}

func TestSyncAll_Success(t *testing.T) {
	s := openStore(t)
	emitter := &captureEmitter{events: make(chan *teldomain.SyncEvent, 1)}
	o := New(seededDirectory(), s, Options{Enabled: true, Emitter: emitter})
	ctx := context.Background()

	st, err := o.SyncAll(ctx, teldomain.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Success)
	assert.Equal(t, 2, st.UsersCount)
	assert.Equal(t, 1, st.DevicesCount)
	assert.NotZero(t, st.ID)

	assert.Len(t, s.Users(ctx), 2)
	assert.Len(t, s.Devices(ctx), 1)

	latest, err := s.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.ID, latest.ID)

	select {
	case ev := <-emitter.events:
		assert.Equal(t, teldomain.EventSyncCompleted, ev.EventType)
		assert.Equal(t, teldomain.TriggerManual, ev.Trigger)
		assert.Equal(t, 2, ev.UsersCount)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no sync event emitted")
	}
}

func TestSyncAll_Idempotent(t *testing.T) {
	s := openStore(t)
	o := New(seededDirectory(), s, Options{})
	ctx := context.Background()

	_, err := o.SyncAll(ctx, teldomain.TriggerManual)
	require.NoError(t, err)
	first, err := s.Load(ctx, "users")
	require.NoError(t, err)

	_, err = o.SyncAll(ctx, teldomain.TriggerManual)
	require.NoError(t, err)
	second, err := s.Load(ctx, "users")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	history, err := s.SyncHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSyncAll_EmptyDirectoryClearsStoredRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.db")
	ctx := context.Background()
	s, err := store.Open(ctx, path)
	require.NoError(t, err)

	dir := seededDirectory()
	o := New(dir, s, Options{})
	_, err = o.SyncAll(ctx, teldomain.TriggerManual)
	require.NoError(t, err)
	require.Len(t, s.Users(ctx), 2)

	dir.set(domain.KindUsers, complete())
	st, err := o.SyncAll(ctx, teldomain.TriggerManual)
	require.NoError(t, err)
	assert.True(t, st.Success)
	assert.Equal(t, 0, st.UsersCount)
	assert.Empty(t, s.Users(ctx))
	assert.Len(t, s.Devices(ctx), 1)
	require.NoError(t, s.Close())

	reopened, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Empty(t, reopened.Users(ctx), "deleted users stay deleted after a restart")
	assert.Len(t, reopened.Devices(ctx), 1)
}

func TestSyncAll_ReentrantCallIsDropped(t *testing.T) {
	s := openStore(t)
	dir := seededDirectory()
	dir.block = make(chan struct{})
	dir.entered = make(chan struct{}, 1)
	o := New(dir, s, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := o.SyncAll(ctx, teldomain.TriggerScheduled)
		done <- err
	}()
	<-dir.entered
	assert.True(t, o.InProgress())

	st, err := o.SyncAll(ctx, teldomain.TriggerManual)
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Nil(t, st)

	latest, err := s.SyncStatus(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "dropped call must not record a status")

	close(dir.block)
	require.NoError(t, <-done)
	assert.False(t, o.InProgress())

	history, err := s.SyncHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	// Two fetches from the first run only: users and devices.
	assert.Equal(t, int32(2), dir.fetches.Load())
}

func TestWait_BlocksUntilRunningSyncFinishes(t *testing.T) {
	s := openStore(t)
	dir := seededDirectory()
	dir.block = make(chan struct{})
	dir.entered = make(chan struct{}, 1)
	o := New(dir, s, Options{})
	ctx := context.Background()

	assert.True(t, o.Wait(ctx), "idle orchestrator returns at once")

	done := make(chan error, 1)
	go func() {
		_, err := o.SyncAll(ctx, teldomain.TriggerScheduled)
		done <- err
	}()
	<-dir.entered

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	assert.False(t, o.Wait(short))
	cancel()

	close(dir.block)
	bounded, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.True(t, o.Wait(bounded))
	require.NoError(t, <-done)

	latest, err := s.SyncStatus(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest, "the status is recorded before Wait returns")
	assert.True(t, latest.Success)
}

func TestSyncAll_Unreachable(t *testing.T) {
	s := openStore(t)
	dir := seededDirectory()
	dir.reachable = false
	o := New(dir, s, Options{})

	st, err := o.SyncAll(context.Background(), teldomain.TriggerScheduled)
	assert.ErrorIs(t, err, client.ErrConnectivity)
	require.NotNil(t, st)
	assert.False(t, st.Success)
	assert.Contains(t, st.Error, "unreachable")
	assert.Zero(t, dir.fetches.Load())
}

func TestSyncAll_IncompleteFetchIsNotPersisted(t *testing.T) {
	s := openStore(t)
	dir := seededDirectory()
	dir.set(domain.KindDevices, domain.FetchResult{
		Records: []domain.Record{{"id": "d1", "displayName": "Laptop"}},
		Pages:   1,
		Err:     errors.New("page 2: 500 Internal Server Error"),
	})
	emitter := &captureEmitter{events: make(chan *teldomain.SyncEvent, 1)}
	o := New(dir, s, Options{Emitter: emitter})
	ctx := context.Background()

	st, err := o.SyncAll(ctx, teldomain.TriggerManual)
	assert.ErrorIs(t, err, ErrIncompleteFetch)
	require.NotNil(t, st)
	assert.False(t, st.Success)
	assert.Contains(t, st.Error, "page 2")
	assert.Equal(t, 0, st.DevicesCount)

	assert.Empty(t, s.Devices(ctx))
	d, err := s.Diagnostics(ctx)
	require.NoError(t, err)
	assert.NotContains(t, d.TableNames(), "devices")

	select {
	case ev := <-emitter.events:
		assert.Equal(t, teldomain.EventSyncFailed, ev.EventType)
		assert.False(t, ev.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("no sync event emitted")
	}
}

func TestSyncResource_SparseProjection(t *testing.T) {
	s := openStore(t)
	dir := newFakeDirectory()
	dir.set(domain.KindUsers, complete(
		domain.Record{"id": "u1", "displayName": "Alice", "jobTitle": nil, "secret": "x", "age": json.Number("3")},
		domain.Record{"displayName": "No Id"},
		domain.Record{"id": "u2", "businessPhones": []any{"+1 555"}},
	))
	o := New(dir, s, Options{})

	got, err := o.SyncResource(context.Background(), domain.KindUsers)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Record{"id": "u1", "displayName": "Alice"}, got[0])
	assert.Equal(t, domain.Record{"id": "u2", "businessPhones": []any{"+1 555"}}, got[1])
}

func TestProject_NormalizesNumbers(t *testing.T) {
	rec := Project(domain.KindDevices, domain.Record{"id": "d1", "model": json.Number("42"), "isManaged": true})
	assert.Equal(t, domain.Record{"id": "d1", "model": int64(42), "isManaged": true}, rec)
}

func TestResourcePath(t *testing.T) {
	path := ResourcePath(domain.KindDevices)
	assert.True(t, strings.HasPrefix(path, "/devices?$select=id,deviceId,displayName,"))
	assert.True(t, strings.HasSuffix(path, "&$top=999"))
	assert.Contains(t, ResourcePath(domain.KindUsers), "userPrincipalName")
}

func TestStart_Disabled(t *testing.T) {
	o := New(seededDirectory(), openStore(t), Options{Enabled: false})
	assert.ErrorIs(t, o.Start(time.Hour), ErrDisabled)
	assert.False(t, o.Scheduled())
}

func TestStart_MissingCredentials(t *testing.T) {
	dir := seededDirectory()
	dir.credentials = false
	o := New(dir, openStore(t), Options{Enabled: true})
	assert.ErrorIs(t, o.Start(time.Hour), client.ErrConfiguration)
	assert.False(t, o.Scheduled())
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	s := openStore(t)
	o := New(seededDirectory(), s, Options{Enabled: true})
	ctx := context.Background()

	require.NoError(t, o.Start(time.Hour))
	assert.True(t, o.Scheduled())
	require.Eventually(t, func() bool {
		st, err := s.SyncStatus(ctx)
		return err == nil && st != nil && st.Success
	}, 5*time.Second, 10*time.Millisecond)

	// Restarting replaces the schedule.
	require.Eventually(t, func() bool { return !o.InProgress() }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, o.Start(time.Hour))
	require.Eventually(t, func() bool {
		history, err := s.SyncHistory(ctx, 10)
		return err == nil && len(history) == 2 && !o.InProgress()
	}, 5*time.Second, 10*time.Millisecond)
	o.Stop()
	assert.False(t, o.Scheduled())
	o.Stop()
}

func TestTriggerManualSync_RequiresCredentials(t *testing.T) {
	s := openStore(t)
	dir := seededDirectory()
	dir.credentials = false
	o := New(dir, s, Options{})

	_, err := o.TriggerManualSync(context.Background())
	assert.ErrorIs(t, err, client.ErrConfiguration)
	latest, err := s.SyncStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestTriggerManualSync_IgnoresCallerCancellation(t *testing.T) {
	s := openStore(t)
	o := New(seededDirectory(), s, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st, err := o.TriggerManualSync(ctx)
	require.NoError(t, err)
	assert.True(t, st.Success)
}

func TestStatus(t *testing.T) {
	s := openStore(t)
	o := New(seededDirectory(), s, Options{Enabled: true})
	ctx := context.Background()

	st := o.Status(ctx)
	assert.True(t, st.Enabled)
	assert.True(t, st.HasCredentials)
	assert.False(t, st.InProgress)
	assert.Nil(t, st.LastSync)

	_, err := o.SyncAll(ctx, teldomain.TriggerManual)
	require.NoError(t, err)
	st = o.Status(ctx)
	require.NotNil(t, st.LastSync)
	assert.True(t, st.LastSync.Success)
}
