// Package domain holds the directory record model shared by the client, store, orchestrator and merge view.
package domain

import "strings"

// Record is a sparse directory entry (user or device). Fields absent at the source are omitted, not nil.
// Every record carries a stable "id".
type Record map[string]any

// ID returns the record's "id" field, or "" if missing or not a string.
func (r Record) ID() string {
	return r.String("id")
}

// String returns field as a string, or "" if missing or not a string.
func (r Record) String(field string) string {
	if r == nil {
		return ""
	}
	s, _ := r[field].(string)
	return s
}

// Bool returns field as a bool and whether it was present as a bool.
func (r Record) Bool(field string) (bool, bool) {
	if r == nil {
		return false, false
	}
	b, ok := r[field].(bool)
	return b, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Kind is the resource type synced from the directory.
type Kind string

const (
	KindUsers   Kind = "users"
	KindDevices Kind = "devices"
)

// Kinds lists every syncable resource in a stable order.
var Kinds = []Kind{KindUsers, KindDevices}

// ParseKind accepts "users"/"user" and "devices"/"device" (case-insensitive).
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "users", "user":
		return KindUsers, true
	case "devices", "device":
		return KindDevices, true
	}
	return "", false
}

// TableName is the backing table for the kind.
func (k Kind) TableName() string {
	return string(k)
}

// Page is one decoded page of a paged directory response.
type Page struct {
	Value []Record `json:"value"`
	// NextCursor is the opaque continuation cursor; empty on the last page.
	NextCursor string `json:"nextCursor,omitempty"`
	// NextLink is the Graph-style spelling of the continuation cursor.
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// Cursor returns the continuation cursor regardless of which spelling the API used.
func (p *Page) Cursor() string {
	if p == nil {
		return ""
	}
	if p.NextCursor != "" {
		return p.NextCursor
	}
	return p.NextLink
}

// FetchResult is the outcome of exhausting a paged endpoint.
// Complete is false when pagination stopped on an error; Records then holds the pages fetched before it.
type FetchResult struct {
	Records  []Record
	Complete bool
	Pages    int
	Err      error
}
