// Package merge combines synced directory records with override records into one source-tagged view.
package merge

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/override"
)

// Source selects which origins a listing includes.
type Source string

const (
	SourceAll      Source = "all"
	SourceSynced   Source = "synced"
	SourceOverride Source = "override"
)

// ParseSource accepts "all", "synced" and "override"; empty means all.
func ParseSource(s string) (Source, bool) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceAll:
		return SourceAll, true
	case SourceSynced:
		return SourceSynced, true
	case SourceOverride:
		return SourceOverride, true
	}
	return "", false
}

// SyncedSource is the read side of the adaptive schema store.
type SyncedSource interface {
	Records(ctx context.Context, kind domain.Kind) []domain.Record
}

// OverrideSource is the read side of the override store.
type OverrideSource interface {
	Records(kind domain.Kind) []domain.Record
}

// View is the merge view. It keeps no state of its own; every call reads both sources.
type View struct {
	synced    SyncedSource
	overrides OverrideSource
	lang      language.Tag
}

var _ override.IdentityIndex = (*View)(nil)

// NewView returns a view over synced and overrides, sorting display names with the collation of lang.
func NewView(synced SyncedSource, overrides OverrideSource, lang language.Tag) *View {
	return &View{synced: synced, overrides: overrides, lang: lang}
}

// Combined returns the records of kind from the selected origins, each tagged with a "source" field,
// sorted by display name (case-insensitive, locale-aware).
func (v *View) Combined(ctx context.Context, kind domain.Kind, src Source) []domain.Record {
	var out []domain.Record
	if src == SourceAll || src == SourceSynced {
		out = appendTagged(out, v.synced.Records(ctx, kind), SourceSynced)
	}
	if src == SourceAll || src == SourceOverride {
		out = appendTagged(out, v.overrides.Records(kind), SourceOverride)
	}
	v.sortByName(out)
	return out
}

// Find returns the combined records of kind that match f.
func (v *View) Find(ctx context.Context, kind domain.Kind, src Source, f domain.Filter) []domain.Record {
	all := v.Combined(ctx, kind, src)
	out := make([]domain.Record, 0, len(all))
	for _, r := range all {
		if f.Matches(kind, r) {
			out = append(out, r)
		}
	}
	return out
}

// GetByID looks id up among synced records first, then overrides.
func (v *View) GetByID(ctx context.Context, kind domain.Kind, id string) (domain.Record, bool) {
	for _, r := range v.synced.Records(ctx, kind) {
		if r.ID() == id {
			return tag(r, SourceSynced), true
		}
	}
	for _, r := range v.overrides.Records(kind) {
		if r.ID() == id {
			return tag(r, SourceOverride), true
		}
	}
	return nil, false
}

// IsIdentityInUse reports whether any user other than excludeID, from either origin, has the given
// mail or principal name (case-insensitive). Empty arguments never match.
func (v *View) IsIdentityInUse(ctx context.Context, email, principalName, excludeID string) bool {
	if email == "" && principalName == "" {
		return false
	}
	for _, r := range v.Combined(ctx, domain.KindUsers, SourceAll) {
		if excludeID != "" && r.ID() == excludeID {
			continue
		}
		if email != "" && strings.EqualFold(r.Text(domain.FieldMail), email) {
			return true
		}
		if principalName != "" && strings.EqualFold(r.Text(domain.FieldUserPrincipalName), principalName) {
			return true
		}
	}
	return false
}

// IsDeviceNameInUse reports whether any device other than excludeID, from either origin, has the given
// display name or device id (case-insensitive).
func (v *View) IsDeviceNameInUse(ctx context.Context, name, deviceID, excludeID string) bool {
	if name == "" && deviceID == "" {
		return false
	}
	for _, r := range v.Combined(ctx, domain.KindDevices, SourceAll) {
		if excludeID != "" && r.ID() == excludeID {
			continue
		}
		if name != "" && strings.EqualFold(r.Text(domain.FieldDisplayName), name) {
			return true
		}
		if deviceID != "" && strings.EqualFold(r.Text(domain.FieldDeviceID), deviceID) {
			return true
		}
	}
	return false
}

func (v *View) sortByName(records []domain.Record) {
	c := collate.New(v.lang, collate.IgnoreCase)
	sort.SliceStable(records, func(i, j int) bool {
		return c.CompareString(records[i].Text(domain.FieldDisplayName), records[j].Text(domain.FieldDisplayName)) < 0
	})
}

func appendTagged(dst, src []domain.Record, s Source) []domain.Record {
	for _, r := range src {
		dst = append(dst, tag(r, s))
	}
	return dst
}

func tag(r domain.Record, s Source) domain.Record {
	out := r.Clone()
	out[domain.FieldSource] = string(s)
	return out
}
