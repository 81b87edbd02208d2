package domain

import (
	"fmt"
	"strings"
)

// Field names shared by synced and override records.
const (
	FieldID                = "id"
	FieldDisplayName       = "displayName"
	FieldMail              = "mail"
	FieldUserPrincipalName = "userPrincipalName"
	FieldJobTitle          = "jobTitle"
	FieldDepartment        = "department"
	FieldDeviceID          = "deviceId"
	FieldOperatingSystem   = "operatingSystem"
	FieldModel             = "model"
	FieldAccountEnabled    = "accountEnabled"
	FieldSource            = "source"
)

// Filter narrows a record listing. Zero-valued fields do not filter.
type Filter struct {
	// Department matches users whose department contains the value (case-insensitive).
	Department string `json:"department,omitempty" form:"department"`
	// OperatingSystem matches devices whose operating system contains the value (case-insensitive).
	OperatingSystem string `json:"operatingSystem,omitempty" form:"operatingSystem"`
	// Enabled matches accountEnabled exactly.
	Enabled *bool `json:"enabled,omitempty" form:"enabled"`
	// Search is a case-insensitive substring match over the kind's search fields.
	Search string `json:"search,omitempty" form:"search"`
}

// SearchFields lists the fields free-text search looks at for kind.
func SearchFields(kind Kind) []string {
	if kind == KindDevices {
		return []string{FieldDisplayName, FieldDeviceID, FieldOperatingSystem, FieldModel}
	}
	return []string{FieldDisplayName, FieldUserPrincipalName, FieldMail, FieldJobTitle}
}

// Matches reports whether r passes every set predicate of f.
func (f Filter) Matches(kind Kind, r Record) bool {
	if f.Department != "" && !containsFold(r.Text(FieldDepartment), f.Department) {
		return false
	}
	if f.OperatingSystem != "" && !containsFold(r.Text(FieldOperatingSystem), f.OperatingSystem) {
		return false
	}
	if f.Enabled != nil && r.Enabled() != *f.Enabled {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		for _, field := range SearchFields(kind) {
			if containsFold(r.Text(field), q) {
				return true
			}
		}
		return false
	}
	return true
}

// Text returns field formatted as a string; missing and nil fields are "".
func (r Record) Text(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Enabled reports accountEnabled. Records without the flag count as enabled.
func (r Record) Enabled() bool {
	if b, ok := r.Bool(FieldAccountEnabled); ok {
		return b
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
