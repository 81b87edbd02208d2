package merge

import (
	"context"

	"directory-sync/backend/internal/directory/domain"
)

// Unknown groups records that lack the grouping field.
const Unknown = "Unknown"

// Stats summarizes the combined records of one kind.
type Stats struct {
	Kind     domain.Kind    `json:"kind" yaml:"kind"`
	Total    int            `json:"total" yaml:"total"`
	Enabled  int            `json:"enabledCount" yaml:"enabledCount"`
	Disabled int            `json:"disabledCount" yaml:"disabledCount"`
	BySource map[string]int `json:"bySource" yaml:"bySource"`
	// GroupedBy names the field ByGroup counts: department for users, operatingSystem for devices.
	GroupedBy string         `json:"groupedBy" yaml:"groupedBy"`
	ByGroup   map[string]int `json:"byGroup" yaml:"byGroup"`
}

// SourceInfo is one entry of the source catalog.
type SourceInfo struct {
	Source  Source `json:"source" yaml:"source"`
	Label   string `json:"label" yaml:"label"`
	Users   int    `json:"users" yaml:"users"`
	Devices int    `json:"devices" yaml:"devices"`
}

var sourceLabels = []struct {
	source Source
	label  string
}{
	{SourceAll, "All sources"},
	{SourceSynced, "Directory (synced)"},
	{SourceOverride, "Manual overrides"},
}

// Stats computes totals, enablement, per-source and per-group counts for kind. Nothing is cached.
func (v *View) Stats(ctx context.Context, kind domain.Kind) Stats {
	group := domain.FieldDepartment
	if kind == domain.KindDevices {
		group = domain.FieldOperatingSystem
	}
	st := Stats{
		Kind:      kind,
		BySource:  map[string]int{string(SourceSynced): 0, string(SourceOverride): 0},
		GroupedBy: group,
		ByGroup:   map[string]int{},
	}
	for _, r := range v.Combined(ctx, kind, SourceAll) {
		st.Total++
		if r.Enabled() {
			st.Enabled++
		} else {
			st.Disabled++
		}
		st.BySource[r.Text(domain.FieldSource)]++
		key := r.Text(group)
		if key == "" {
			key = Unknown
		}
		st.ByGroup[key]++
	}
	return st
}

// Sources returns the source catalog with live user and device counts.
func (v *View) Sources(ctx context.Context) []SourceInfo {
	syncedUsers := len(v.synced.Records(ctx, domain.KindUsers))
	syncedDevices := len(v.synced.Records(ctx, domain.KindDevices))
	overrideUsers := len(v.overrides.Records(domain.KindUsers))
	overrideDevices := len(v.overrides.Records(domain.KindDevices))

	out := make([]SourceInfo, 0, len(sourceLabels))
	for _, sl := range sourceLabels {
		info := SourceInfo{Source: sl.source, Label: sl.label}
		switch sl.source {
		case SourceAll:
			info.Users, info.Devices = syncedUsers+overrideUsers, syncedDevices+overrideDevices
		case SourceSynced:
			info.Users, info.Devices = syncedUsers, syncedDevices
		case SourceOverride:
			info.Users, info.Devices = overrideUsers, overrideDevices
		}
		out = append(out, info)
	}
	return out
}
