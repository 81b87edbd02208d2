package syncer

import (
	"strconv"
	"strings"

	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/schema"
)

// pageSize is the $top requested per page.
const pageSize = 999

var userFields = []string{
	"id", "displayName", "givenName", "surname", "userPrincipalName", "mail", "jobTitle", "department",
	"officeLocation", "mobilePhone", "businessPhones", "accountEnabled", "createdDateTime", "employeeId",
	"companyName", "usageLocation",
}

var deviceFields = []string{
	"id", "deviceId", "displayName", "operatingSystem", "operatingSystemVersion", "accountEnabled",
	"isCompliant", "isManaged", "trustType", "approximateLastSignInDateTime", "registrationDateTime",
	"manufacturer", "model",
}

// Fields returns the projection requested for kind.
func Fields(kind domain.Kind) []string {
	if kind == domain.KindDevices {
		return deviceFields
	}
	return userFields
}

// ResourcePath is the initial page path for kind, selecting only the projected fields.
func ResourcePath(kind domain.Kind) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(string(kind))
	b.WriteString("?$select=")
	b.WriteString(strings.Join(Fields(kind), ","))
	b.WriteString("&$top=")
	b.WriteString(strconv.Itoa(pageSize))
	return b.String()
}

// Project keeps the projected fields the source actually provided. Null values are omitted so the
// inferred schema only grows with real data. Values are normalized to canonical form.
func Project(kind domain.Kind, raw domain.Record) domain.Record {
	fields := Fields(kind)
	out := make(domain.Record, len(fields))
	for _, f := range fields {
		v, ok := raw[f]
		if !ok || v == nil {
			continue
		}
		out[f] = schema.Normalize(v)
	}
	return out
}
