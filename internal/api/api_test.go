package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"directory-sync/backend/internal/audit"
	auditdomain "directory-sync/backend/internal/audit/domain"
	auditrepo "directory-sync/backend/internal/audit/repository"
	"directory-sync/backend/internal/directory/client"
	dirdomain "directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/merge"
	"directory-sync/backend/internal/override"
	ovrdomain "directory-sync/backend/internal/override/domain"
	"directory-sync/backend/internal/schema"
	"directory-sync/backend/internal/store"
	"directory-sync/backend/internal/syncer"
)

type fakeSyncer struct {
	status *dirdomain.SyncStatus
	err    error
	calls  int
}

func (f *fakeSyncer) TriggerManualSync(context.Context) (*dirdomain.SyncStatus, error) {
	f.calls++
	return f.status, f.err
}

func (f *fakeSyncer) Status(context.Context) syncer.Status {
	return syncer.Status{Enabled: true, HasCredentials: true, LastSync: f.status}
}

type fixture struct {
	svc    *Service
	store  *store.Store
	ovr    *override.Store
	syncer *fakeSyncer
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.SetUsers(ctx, []dirdomain.Record{
		{"id": "s1", "displayName": "Alice", "mail": "alice@x.com", "department": "Engineering", "accountEnabled": true},
	}))
	require.NoError(t, st.SetDevices(ctx, []dirdomain.Record{
		{"id": "d1", "displayName": "Laptop", "operatingSystem": "Windows", "accountEnabled": true},
	}))

	auditLogger := audit.NewLogger(auditrepo.NewSQLiteRepository(st.DB()))
	ovr := override.NewStore(auditLogger)
	view := merge.NewView(st, ovr, language.English)
	ovr.SetIdentityIndex(view)

	fs := &fakeSyncer{status: &dirdomain.SyncStatus{ID: 1, Success: true, UsersCount: 1, DevicesCount: 1}}
	svc := NewService(view, ovr, fs, st, auditLogger)
	gin.SetMode(gin.TestMode)
	return &fixture{svc: svc, store: st, ovr: ovr, syncer: fs, router: NewRouter(svc)}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "admin-1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		kind string
		code int
	}{
		{nil, "", http.StatusOK},
		{fmt.Errorf("wrap: %w", override.ErrValidation), KindValidation, http.StatusBadRequest},
		{ErrInvalidArgument, KindValidation, http.StatusBadRequest},
		{override.ErrConflict, KindConflict, http.StatusConflict},
		{override.ErrNotFound, KindNotFound, http.StatusNotFound},
		{syncer.ErrInProgress, KindInProgress, http.StatusConflict},
		{fmt.Errorf("%w: users: %w", syncer.ErrIncompleteFetch, errors.New("x")), KindIncompleteFetch, http.StatusServiceUnavailable},
		{syncer.ErrDisabled, KindConfiguration, http.StatusServiceUnavailable},
		{client.ErrConfiguration, KindConfiguration, http.StatusServiceUnavailable},
		{client.ErrAuth, KindAuth, http.StatusServiceUnavailable},
		{client.ErrConnectivity, KindConnectivity, http.StatusServiceUnavailable},
		{schema.ErrEmptySample, KindSchema, http.StatusInternalServerError},
		{errors.New("disk full"), KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		kind := KindOf(tt.err)
		assert.Equal(t, tt.kind, kind, "%v", tt.err)
		assert.Equal(t, tt.code, HTTPStatus(kind), "%v", tt.err)
	}
}

func TestService_CombinedAndFind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := f.svc.CreateUser(ctx, overrideUser("Bob", "bob@x.com"), "admin-1")
	require.True(t, env.Success, env.Message)

	env = f.svc.GetCombined(ctx, "users", "all")
	require.True(t, env.Success)
	records := env.Data.([]dirdomain.Record)
	require.Len(t, records, 2)
	assert.Equal(t, "Alice", records[0].String("displayName"))
	assert.Equal(t, "synced", records[0].String("source"))
	assert.Equal(t, "override", records[1].String("source"))

	env = f.svc.Find(ctx, "users", "", dirdomain.Filter{Department: "eng"})
	require.True(t, env.Success)
	assert.Len(t, env.Data.([]dirdomain.Record), 1)

	env = f.svc.GetCombined(ctx, "printers", "")
	assert.False(t, env.Success)
	assert.Equal(t, KindValidation, env.Error)

	env = f.svc.GetCombined(ctx, "users", "ldap")
	assert.Equal(t, KindValidation, env.Error)

	env = f.svc.GetCombined(ctx, "devices", "override")
	require.True(t, env.Success)
	assert.NotNil(t, env.Data)
	assert.Empty(t, env.Data.([]dirdomain.Record))
}

func overrideUser(name, mail string) ovrdomain.CreateUserRequest {
	return ovrdomain.CreateUserRequest{DisplayName: name, Mail: mail}
}

func TestService_Conflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := f.svc.CreateUser(ctx, overrideUser("Alice Clone", "alice@x.com"), "")
	assert.False(t, env.Success)
	assert.Equal(t, KindConflict, env.Error)

	env = f.svc.CreateUser(ctx, overrideUser("", ""), "")
	assert.Equal(t, KindValidation, env.Error)

	env = f.svc.DeleteUser(ctx, "ovr-missing", "")
	assert.Equal(t, KindNotFound, env.Error)

	env = f.svc.GetByID(ctx, "devices", "d1")
	require.True(t, env.Success)
	env = f.svc.GetByID(ctx, "devices", "nope")
	assert.Equal(t, KindNotFound, env.Error)
}

func TestService_TriggerManualSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := f.svc.TriggerManualSync(ctx)
	require.True(t, env.Success)
	assert.Equal(t, 1, f.syncer.calls)

	f.syncer.err = fmt.Errorf("%w: directory API is unreachable", client.ErrConnectivity)
	f.syncer.status = &dirdomain.SyncStatus{ID: 2, Success: false, Error: "unreachable"}
	env = f.svc.TriggerManualSync(ctx)
	assert.False(t, env.Success)
	assert.Equal(t, KindConnectivity, env.Error)
	require.NotNil(t, env.Data)

	f.syncer.err = syncer.ErrInProgress
	f.syncer.status = nil
	env = f.svc.TriggerManualSync(ctx)
	assert.Equal(t, KindInProgress, env.Error)
	assert.Nil(t, env.Data)
}

func TestService_StatsSourcesDiagnosticsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env := f.svc.GetStats(ctx, "devices")
	require.True(t, env.Success)
	stats := env.Data.(merge.Stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, map[string]int{"Windows": 1}, stats.ByGroup)

	env = f.svc.ListAvailableSources(ctx)
	require.True(t, env.Success)
	assert.Len(t, env.Data.([]merge.SourceInfo), 3)

	env = f.svc.GetDiagnostics(ctx)
	require.True(t, env.Success)
	assert.Contains(t, env.Data.(*store.Diagnostics).TableNames(), "users")

	env = f.svc.GetSyncHistory(ctx, 5)
	require.True(t, env.Success)
	assert.Empty(t, env.Data.([]dirdomain.SyncStatus))

	env = f.svc.GetSyncStatus(ctx)
	require.True(t, env.Success)
	assert.True(t, env.Data.(syncer.Status).Enabled)
}

func TestRouter_OverrideLifecycle(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodPost, "/api/users", map[string]any{"displayName": "Bob", "mail": "bob@x.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)
	id := env.Data.(map[string]any)["id"].(string)
	assert.Equal(t, "admin-1", env.Data.(map[string]any)["createdBy"])

	w, _ = f.do(t, http.MethodPost, "/api/users", map[string]any{"displayName": "Bob 2", "mail": "bob@x.com"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, env = f.do(t, http.MethodPatch, "/api/users/"+id, map[string]any{"jobTitle": "Engineer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Engineer", env.Data.(map[string]any)["jobTitle"])

	w, env = f.do(t, http.MethodGet, "/api/users/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "override", env.Data.(map[string]any)["source"])

	w, _ = f.do(t, http.MethodGet, "/api/audit?resource=override_user", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodDelete, "/api/users/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = f.do(t, http.MethodDelete, "/api/users/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, KindNotFound, env.Error)

	logs, err := f.svc.audit.List(context.Background(), auditdomain.ListFilter{Resource: "override_user"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "delete", logs[0].Action)
	assert.Equal(t, "admin-1", logs[0].ActorID)
}

func TestRouter_ListingAndFilters(t *testing.T) {
	f := newFixture(t)

	w, env := f.do(t, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.Data.([]any), 1)

	w, env = f.do(t, http.MethodGet, "/api/devices?operatingSystem=linux", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.Data.([]any))

	w, env = f.do(t, http.MethodGet, "/api/users?enabled=true&source=synced", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, env.Data.([]any), 1)

	w, _ = f.do(t, http.MethodGet, "/api/users?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodGet, "/api/users/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), env.Data.(map[string]any)["total"])

	w, _ = f.do(t, http.MethodGet, "/api/sync/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = f.do(t, http.MethodPost, "/api/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sync completed", env.Message)

	w, _ = f.do(t, http.MethodGet, "/api/sources", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodGet, "/api/diagnostics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodGet, "/api/sync/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
