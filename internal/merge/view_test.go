package merge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/override"
	ovrdomain "directory-sync/backend/internal/override/domain"
)

type fakeSynced map[domain.Kind][]domain.Record

func (f fakeSynced) Records(_ context.Context, kind domain.Kind) []domain.Record {
	return f[kind]
}

func newTestView(t *testing.T, synced fakeSynced) (*View, *override.Store) {
	t.Helper()
	ovr := override.NewStore(nil)
	v := NewView(synced, ovr, language.English)
	ovr.SetIdentityIndex(v)
	return v, ovr
}

func displayNames(records []domain.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.String(domain.FieldDisplayName)
	}
	return out
}

func TestCombined_MergesAndSorts(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{
		domain.KindUsers: {{"id": "s1", "displayName": "Alice", "mail": "alice@x.com"}},
	})
	ctx := context.Background()
	_, err := ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Bob", Mail: "bob@x.com"}, "")
	require.NoError(t, err)

	all := v.Combined(ctx, domain.KindUsers, SourceAll)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"Alice", "Bob"}, displayNames(all))
	assert.Equal(t, "synced", all[0].String(domain.FieldSource))
	assert.Equal(t, "override", all[1].String(domain.FieldSource))

	assert.True(t, v.IsIdentityInUse(ctx, "bob@x.com", "", ""))
	assert.True(t, v.IsIdentityInUse(ctx, "ALICE@x.com", "", ""))
	assert.False(t, v.IsIdentityInUse(ctx, "carol@x.com", "", ""))
	assert.False(t, v.IsIdentityInUse(ctx, "", "", ""))
	assert.False(t, v.IsIdentityInUse(ctx, "alice@x.com", "", "s1"), "excluded id does not count")
}

func TestCombined_SourceFilter(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{
		domain.KindUsers: {{"id": "s1", "displayName": "Alice"}},
	})
	ctx := context.Background()
	_, err := ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Bob"}, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice"}, displayNames(v.Combined(ctx, domain.KindUsers, SourceSynced)))
	assert.Equal(t, []string{"Bob"}, displayNames(v.Combined(ctx, domain.KindUsers, SourceOverride)))
}

func TestCombined_CaseInsensitiveLocaleOrder(t *testing.T) {
	v, _ := newTestView(t, fakeSynced{
		domain.KindUsers: {
			{"id": "1", "displayName": "émile"},
			{"id": "2", "displayName": "Zoe"},
			{"id": "3", "displayName": "adam"},
			{"id": "4", "displayName": "Eve"},
		},
	})
	got := displayNames(v.Combined(context.Background(), domain.KindUsers, SourceAll))
	assert.Equal(t, []string{"adam", "émile", "Eve", "Zoe"}, got)
}

func TestCombined_DoesNotMutateSources(t *testing.T) {
	synced := fakeSynced{domain.KindUsers: {{"id": "s1", "displayName": "Alice"}}}
	v, _ := newTestView(t, synced)
	_ = v.Combined(context.Background(), domain.KindUsers, SourceAll)
	_, tagged := synced[domain.KindUsers][0][domain.FieldSource]
	assert.False(t, tagged)
}

func TestFind_AcrossOrigins(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{
		domain.KindDevices: {
			{"id": "d1", "displayName": "Build Server", "operatingSystem": "Linux", "accountEnabled": true},
			{"id": "d2", "displayName": "Old Phone", "operatingSystem": "Android", "accountEnabled": false},
		},
	})
	ctx := context.Background()
	_, err := ovr.CreateDevice(ctx, ovrdomain.CreateDeviceRequest{DisplayName: "Kiosk", OperatingSystem: "Linux Mint", Model: "NUC"}, "")
	require.NoError(t, err)

	linux := v.Find(ctx, domain.KindDevices, SourceAll, domain.Filter{OperatingSystem: "linux"})
	assert.Equal(t, []string{"Build Server", "Kiosk"}, displayNames(linux))

	disabled := false
	assert.Equal(t, []string{"Old Phone"}, displayNames(v.Find(ctx, domain.KindDevices, SourceAll, domain.Filter{Enabled: &disabled})))
	assert.Equal(t, []string{"Kiosk"}, displayNames(v.Find(ctx, domain.KindDevices, SourceAll, domain.Filter{Search: "nuc"})))
	assert.Empty(t, v.Find(ctx, domain.KindDevices, SourceSynced, domain.Filter{Search: "nuc"}))
}

func TestGetByID_SyncedFirst(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{
		domain.KindUsers: {{"id": "s1", "displayName": "Alice"}},
	})
	ctx := context.Background()
	u, err := ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Bob"}, "")
	require.NoError(t, err)

	r, ok := v.GetByID(ctx, domain.KindUsers, "s1")
	require.True(t, ok)
	assert.Equal(t, "synced", r.String(domain.FieldSource))

	r, ok = v.GetByID(ctx, domain.KindUsers, u.ID)
	require.True(t, ok)
	assert.Equal(t, "override", r.String(domain.FieldSource))
	assert.Equal(t, "Bob", r.String(domain.FieldDisplayName))

	_, ok = v.GetByID(ctx, domain.KindUsers, "missing")
	assert.False(t, ok)
}

func TestOverrideStore_RejectsCrossOriginIdentity(t *testing.T) {
	_, ovr := newTestView(t, fakeSynced{
		domain.KindUsers:   {{"id": "s1", "displayName": "Alice", "mail": "alice@x.com", "userPrincipalName": "alice@corp"}},
		domain.KindDevices: {{"id": "d1", "displayName": "Build Server", "deviceId": "abc"}},
	})
	ctx := context.Background()

	_, err := ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Alice Clone", Mail: "alice@x.com"}, "")
	assert.True(t, errors.Is(err, override.ErrConflict))
	_, err = ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Alice Clone", UserPrincipalName: "alice@corp"}, "")
	assert.True(t, errors.Is(err, override.ErrConflict))
	_, err = ovr.CreateDevice(ctx, ovrdomain.CreateDeviceRequest{DisplayName: "build server"}, "")
	assert.True(t, errors.Is(err, override.ErrConflict))
	_, err = ovr.CreateDevice(ctx, ovrdomain.CreateDeviceRequest{DisplayName: "Other", DeviceID: "ABC"}, "")
	assert.True(t, errors.Is(err, override.ErrConflict))
}

func TestIsDeviceNameInUse_ExcludesSelf(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{})
	ctx := context.Background()
	d, err := ovr.CreateDevice(ctx, ovrdomain.CreateDeviceRequest{DisplayName: "Kiosk"}, "")
	require.NoError(t, err)

	assert.True(t, v.IsDeviceNameInUse(ctx, "kiosk", "", ""))
	assert.False(t, v.IsDeviceNameInUse(ctx, "kiosk", "", d.ID))
	assert.False(t, v.IsDeviceNameInUse(ctx, "", "", ""))
}

func TestStats(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{
		domain.KindUsers: {
			{"id": "s1", "displayName": "Alice", "department": "Engineering", "accountEnabled": true},
			{"id": "s2", "displayName": "Bob", "department": "Engineering", "accountEnabled": false},
			{"id": "s3", "displayName": "Carol"},
		},
	})
	ctx := context.Background()
	off := false
	_, err := ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Dan", Department: "Sales", AccountEnabled: &off}, "")
	require.NoError(t, err)

	st := v.Stats(ctx, domain.KindUsers)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.Enabled)
	assert.Equal(t, 2, st.Disabled)
	assert.Equal(t, map[string]int{"synced": 3, "override": 1}, st.BySource)
	assert.Equal(t, domain.FieldDepartment, st.GroupedBy)
	assert.Equal(t, map[string]int{"Engineering": 2, "Sales": 1, Unknown: 1}, st.ByGroup)

	dev := v.Stats(ctx, domain.KindDevices)
	assert.Equal(t, 0, dev.Total)
	assert.Equal(t, domain.FieldOperatingSystem, dev.GroupedBy)
}

func TestSources(t *testing.T) {
	v, ovr := newTestView(t, fakeSynced{
		domain.KindUsers:   {{"id": "s1", "displayName": "Alice"}, {"id": "s2", "displayName": "Bob"}},
		domain.KindDevices: {{"id": "d1", "displayName": "PC"}},
	})
	ctx := context.Background()
	_, err := ovr.CreateUser(ctx, ovrdomain.CreateUserRequest{DisplayName: "Carol"}, "")
	require.NoError(t, err)

	got := v.Sources(ctx)
	require.Len(t, got, 3)
	assert.Equal(t, SourceInfo{Source: SourceAll, Label: "All sources", Users: 3, Devices: 1}, got[0])
	assert.Equal(t, SourceInfo{Source: SourceSynced, Label: "Directory (synced)", Users: 2, Devices: 1}, got[1])
	assert.Equal(t, SourceInfo{Source: SourceOverride, Label: "Manual overrides", Users: 1, Devices: 0}, got[2])
}

func TestParseSource(t *testing.T) {
	for in, want := range map[string]Source{"": SourceAll, "ALL": SourceAll, "synced": SourceSynced, " override ": SourceOverride} {
		got, ok := ParseSource(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseSource("ldap")
	assert.False(t, ok)
}
