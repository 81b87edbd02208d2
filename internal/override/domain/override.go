// Package domain defines manually authored user and device records and their request types.
package domain

import (
	"time"

	dirdomain "directory-sync/backend/internal/directory/domain"
)

// Source is the origin tag carried by every override record.
const Source = "override"

// IDPrefix namespaces override ids so they never collide with directory object ids.
const IDPrefix = "ovr-"

// User is a manually authored directory user.
type User struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"displayName"`
	GivenName         string    `json:"givenName,omitempty"`
	Surname           string    `json:"surname,omitempty"`
	UserPrincipalName string    `json:"userPrincipalName,omitempty"`
	Mail              string    `json:"mail,omitempty"`
	JobTitle          string    `json:"jobTitle,omitempty"`
	Department        string    `json:"department,omitempty"`
	OfficeLocation    string    `json:"officeLocation,omitempty"`
	MobilePhone       string    `json:"mobilePhone,omitempty"`
	BusinessPhones    []string  `json:"businessPhones,omitempty"`
	EmployeeID        string    `json:"employeeId,omitempty"`
	CompanyName       string    `json:"companyName,omitempty"`
	UsageLocation     string    `json:"usageLocation,omitempty"`
	AccountEnabled    bool      `json:"accountEnabled"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	CreatedBy         string    `json:"createdBy,omitempty"`
	UpdatedBy         string    `json:"updatedBy,omitempty"`
}

// Device is a manually authored device.
type Device struct {
	ID                     string    `json:"id"`
	DeviceID               string    `json:"deviceId,omitempty"`
	DisplayName            string    `json:"displayName"`
	OperatingSystem        string    `json:"operatingSystem,omitempty"`
	OperatingSystemVersion string    `json:"operatingSystemVersion,omitempty"`
	TrustType              string    `json:"trustType,omitempty"`
	Manufacturer           string    `json:"manufacturer,omitempty"`
	Model                  string    `json:"model,omitempty"`
	AccountEnabled         bool      `json:"accountEnabled"`
	IsCompliant            bool      `json:"isCompliant"`
	IsManaged              bool      `json:"isManaged"`
	Source                 string    `json:"source"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
	CreatedBy              string    `json:"createdBy,omitempty"`
	UpdatedBy              string    `json:"updatedBy,omitempty"`
}

// CreateUserRequest carries the fields of a new override user. AccountEnabled defaults to true.
type CreateUserRequest struct {
	DisplayName       string   `json:"displayName"`
	GivenName         string   `json:"givenName,omitempty"`
	Surname           string   `json:"surname,omitempty"`
	UserPrincipalName string   `json:"userPrincipalName,omitempty"`
	Mail              string   `json:"mail,omitempty"`
	JobTitle          string   `json:"jobTitle,omitempty"`
	Department        string   `json:"department,omitempty"`
	OfficeLocation    string   `json:"officeLocation,omitempty"`
	MobilePhone       string   `json:"mobilePhone,omitempty"`
	BusinessPhones    []string `json:"businessPhones,omitempty"`
	EmployeeID        string   `json:"employeeId,omitempty"`
	CompanyName       string   `json:"companyName,omitempty"`
	UsageLocation     string   `json:"usageLocation,omitempty"`
	AccountEnabled    *bool    `json:"accountEnabled,omitempty"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged.
type UpdateUserRequest struct {
	DisplayName       *string   `json:"displayName,omitempty"`
	GivenName         *string   `json:"givenName,omitempty"`
	Surname           *string   `json:"surname,omitempty"`
	UserPrincipalName *string   `json:"userPrincipalName,omitempty"`
	Mail              *string   `json:"mail,omitempty"`
	JobTitle          *string   `json:"jobTitle,omitempty"`
	Department        *string   `json:"department,omitempty"`
	OfficeLocation    *string   `json:"officeLocation,omitempty"`
	MobilePhone       *string   `json:"mobilePhone,omitempty"`
	BusinessPhones    *[]string `json:"businessPhones,omitempty"`
	EmployeeID        *string   `json:"employeeId,omitempty"`
	CompanyName       *string   `json:"companyName,omitempty"`
	UsageLocation     *string   `json:"usageLocation,omitempty"`
	AccountEnabled    *bool     `json:"accountEnabled,omitempty"`
}

// CreateDeviceRequest carries the fields of a new override device. AccountEnabled defaults to true.
type CreateDeviceRequest struct {
	DeviceID               string `json:"deviceId,omitempty"`
	DisplayName            string `json:"displayName"`
	OperatingSystem        string `json:"operatingSystem,omitempty"`
	OperatingSystemVersion string `json:"operatingSystemVersion,omitempty"`
	TrustType              string `json:"trustType,omitempty"`
	Manufacturer           string `json:"manufacturer,omitempty"`
	Model                  string `json:"model,omitempty"`
	AccountEnabled         *bool  `json:"accountEnabled,omitempty"`
	IsCompliant            bool   `json:"isCompliant,omitempty"`
	IsManaged              bool   `json:"isManaged,omitempty"`
}

// UpdateDeviceRequest is a partial update; nil fields are left unchanged.
type UpdateDeviceRequest struct {
	DeviceID               *string `json:"deviceId,omitempty"`
	DisplayName            *string `json:"displayName,omitempty"`
	OperatingSystem        *string `json:"operatingSystem,omitempty"`
	OperatingSystemVersion *string `json:"operatingSystemVersion,omitempty"`
	TrustType              *string `json:"trustType,omitempty"`
	Manufacturer           *string `json:"manufacturer,omitempty"`
	Model                  *string `json:"model,omitempty"`
	AccountEnabled         *bool   `json:"accountEnabled,omitempty"`
	IsCompliant            *bool   `json:"isCompliant,omitempty"`
	IsManaged              *bool   `json:"isManaged,omitempty"`
}

// Record renders u as a sparse directory record: empty strings are omitted, flags and audit fields kept.
func (u *User) Record() dirdomain.Record {
	r := dirdomain.Record{
		dirdomain.FieldID:             u.ID,
		dirdomain.FieldDisplayName:    u.DisplayName,
		dirdomain.FieldAccountEnabled: u.AccountEnabled,
	}
	setText(r, "givenName", u.GivenName)
	setText(r, "surname", u.Surname)
	setText(r, dirdomain.FieldUserPrincipalName, u.UserPrincipalName)
	setText(r, dirdomain.FieldMail, u.Mail)
	setText(r, dirdomain.FieldJobTitle, u.JobTitle)
	setText(r, dirdomain.FieldDepartment, u.Department)
	setText(r, "officeLocation", u.OfficeLocation)
	setText(r, "mobilePhone", u.MobilePhone)
	setText(r, "employeeId", u.EmployeeID)
	setText(r, "companyName", u.CompanyName)
	setText(r, "usageLocation", u.UsageLocation)
	if len(u.BusinessPhones) > 0 {
		phones := make([]any, len(u.BusinessPhones))
		for i, p := range u.BusinessPhones {
			phones[i] = p
		}
		r["businessPhones"] = phones
	}
	setAudit(r, u.CreatedAt, u.UpdatedAt, u.CreatedBy, u.UpdatedBy)
	return r
}

// Record renders d as a sparse directory record.
func (d *Device) Record() dirdomain.Record {
	r := dirdomain.Record{
		dirdomain.FieldID:             d.ID,
		dirdomain.FieldDisplayName:    d.DisplayName,
		dirdomain.FieldAccountEnabled: d.AccountEnabled,
		"isCompliant":                 d.IsCompliant,
		"isManaged":                   d.IsManaged,
	}
	setText(r, dirdomain.FieldDeviceID, d.DeviceID)
	setText(r, dirdomain.FieldOperatingSystem, d.OperatingSystem)
	setText(r, "operatingSystemVersion", d.OperatingSystemVersion)
	setText(r, "trustType", d.TrustType)
	setText(r, "manufacturer", d.Manufacturer)
	setText(r, dirdomain.FieldModel, d.Model)
	setAudit(r, d.CreatedAt, d.UpdatedAt, d.CreatedBy, d.UpdatedBy)
	return r
}

func setText(r dirdomain.Record, field, v string) {
	if v != "" {
		r[field] = v
	}
}

func setAudit(r dirdomain.Record, created, updated time.Time, createdBy, updatedBy string) {
	r["createdAt"] = created.UTC().Format(time.RFC3339)
	r["updatedAt"] = updated.UTC().Format(time.RFC3339)
	setText(r, "createdBy", createdBy)
	setText(r, "updatedBy", updatedBy)
}
