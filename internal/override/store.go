// Package override holds manually authored user and device records in memory, independent of the
// directory sync. It validates identity fields and rejects duplicates within its own records and,
// through an IdentityIndex, across the merged view.
package override

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	dirdomain "directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/override/domain"
)

var (
	// ErrValidation is returned for missing or malformed fields.
	ErrValidation = errors.New("override: validation failed")
	// ErrConflict is returned when an identity field is already in use.
	ErrConflict = errors.New("override: identity already in use")
	// ErrNotFound is returned for an unknown id.
	ErrNotFound = errors.New("override: record not found")
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	principalRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
)

// IdentityIndex answers uniqueness questions across every origin. The merge view implements it.
type IdentityIndex interface {
	IsIdentityInUse(ctx context.Context, email, principalName, excludeID string) bool
	IsDeviceNameInUse(ctx context.Context, name, deviceID, excludeID string) bool
}

// AuditLogger records override mutations. Best-effort: implementations must not fail the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, actorID, action, resource, resourceID, metadata string)
}

// Store is the in-memory Override Record Store. It is the sole writer of override records.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	devices map[string]*domain.Device

	index IdentityIndex
	audit AuditLogger
	nowF  func() time.Time
	newID func() string
}

// NewStore returns an empty store. audit may be nil.
func NewStore(audit AuditLogger) *Store {
	return &Store{
		users:   make(map[string]*domain.User),
		devices: make(map[string]*domain.Device),
		audit:   audit,
		nowF:    func() time.Time { return time.Now().UTC() },
		newID:   func() string { return domain.IDPrefix + uuid.New().String() },
	}
}

// SetIdentityIndex installs the cross-origin uniqueness check. The index is consulted before the store's
// lock is taken, so it may read back from this store.
func (s *Store) SetIdentityIndex(idx IdentityIndex) {
	s.mu.Lock()
	s.index = idx
	s.mu.Unlock()
}

func (s *Store) identityIndex() IdentityIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// CreateUser validates req, rejects duplicate mail or principal name, and stores a new user.
func (s *Store) CreateUser(ctx context.Context, req domain.CreateUserRequest, creatorID string) (*domain.User, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Mail = strings.TrimSpace(req.Mail)
	req.UserPrincipalName = strings.TrimSpace(req.UserPrincipalName)
	if err := validateUser(req.DisplayName, req.Mail, req.UserPrincipalName); err != nil {
		return nil, err
	}
	if idx := s.identityIndex(); idx != nil && idx.IsIdentityInUse(ctx, req.Mail, req.UserPrincipalName, "") {
		return nil, fmt.Errorf("%w: mail or principal name belongs to another user", ErrConflict)
	}

	now := s.nowF()
	enabled := true
	if req.AccountEnabled != nil {
		enabled = *req.AccountEnabled
	}
	u := &domain.User{
		ID:                s.newID(),
		DisplayName:       req.DisplayName,
		GivenName:         req.GivenName,
		Surname:           req.Surname,
		UserPrincipalName: req.UserPrincipalName,
		Mail:              req.Mail,
		JobTitle:          req.JobTitle,
		Department:        req.Department,
		OfficeLocation:    req.OfficeLocation,
		MobilePhone:       req.MobilePhone,
		BusinessPhones:    append([]string(nil), req.BusinessPhones...),
		EmployeeID:        req.EmployeeID,
		CompanyName:       req.CompanyName,
		UsageLocation:     req.UsageLocation,
		AccountEnabled:    enabled,
		Source:            domain.Source,
		CreatedAt:         now,
		UpdatedAt:         now,
		CreatedBy:         creatorID,
		UpdatedBy:         creatorID,
	}

	s.mu.Lock()
	if err := s.userConflictLocked(u.Mail, u.UserPrincipalName, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.users[u.ID] = u
	s.mu.Unlock()

	s.logEvent(ctx, creatorID, "create", "override_user", u.ID, u.DisplayName)
	cp := *u
	return &cp, nil
}

// UpdateUser applies the non-nil fields of req to the user with id. Changed identity fields are
// re-validated against every other record.
func (s *Store) UpdateUser(ctx context.Context, id string, req domain.UpdateUserRequest, updaterID string) (*domain.User, error) {
	cur, ok := s.GetUser(id)
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}

	next := *cur
	applyUserUpdate(&next, req)
	if err := validateUser(next.DisplayName, next.Mail, next.UserPrincipalName); err != nil {
		return nil, err
	}
	mail, upn := changed(cur.Mail, next.Mail), changed(cur.UserPrincipalName, next.UserPrincipalName)
	if mail != "" || upn != "" {
		if idx := s.identityIndex(); idx != nil && idx.IsIdentityInUse(ctx, mail, upn, id) {
			return nil, fmt.Errorf("%w: mail or principal name belongs to another user", ErrConflict)
		}
	}

	s.mu.Lock()
	stored, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err := s.userConflictLocked(mail, upn, id); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	applyUserUpdate(stored, req)
	stored.UpdatedAt = s.nowF()
	stored.UpdatedBy = updaterID
	out := *stored
	s.mu.Unlock()

	s.logEvent(ctx, updaterID, "update", "override_user", id, out.DisplayName)
	return &out, nil
}

// DeleteUser removes the user with id and reports whether one was removed.
func (s *Store) DeleteUser(ctx context.Context, id, actorID string) bool {
	s.mu.Lock()
	_, ok := s.users[id]
	delete(s.users, id)
	s.mu.Unlock()
	if ok {
		s.logEvent(ctx, actorID, "delete", "override_user", id, "")
	}
	return ok
}

// GetUser returns a copy of the user with id.
func (s *Store) GetUser(id string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// ListUsers returns copies of all users ordered by creation time.
func (s *Store) ListUsers() []*domain.User {
	s.mu.RLock()
	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindUsers returns the users matching f.
func (s *Store) FindUsers(f dirdomain.Filter) []*domain.User {
	var out []*domain.User
	for _, u := range s.ListUsers() {
		if f.Matches(dirdomain.KindUsers, u.Record()) {
			out = append(out, u)
		}
	}
	return out
}

// CreateDevice validates req, rejects a duplicate device id or display name, and stores a new device.
func (s *Store) CreateDevice(ctx context.Context, req domain.CreateDeviceRequest, creatorID string) (*domain.Device, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DisplayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrValidation)
	}
	if idx := s.identityIndex(); idx != nil && idx.IsDeviceNameInUse(ctx, req.DisplayName, req.DeviceID, "") {
		return nil, fmt.Errorf("%w: device name or device id belongs to another device", ErrConflict)
	}

	now := s.nowF()
	enabled := true
	if req.AccountEnabled != nil {
		enabled = *req.AccountEnabled
	}
	d := &domain.Device{
		ID:                     s.newID(),
		DeviceID:               req.DeviceID,
		DisplayName:            req.DisplayName,
		OperatingSystem:        req.OperatingSystem,
		OperatingSystemVersion: req.OperatingSystemVersion,
		TrustType:              req.TrustType,
		Manufacturer:           req.Manufacturer,
		Model:                  req.Model,
		AccountEnabled:         enabled,
		IsCompliant:            req.IsCompliant,
		IsManaged:              req.IsManaged,
		Source:                 domain.Source,
		CreatedAt:              now,
		UpdatedAt:              now,
		CreatedBy:              creatorID,
		UpdatedBy:              creatorID,
	}

	s.mu.Lock()
	if err := s.deviceConflictLocked(d.DisplayName, d.DeviceID, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.devices[d.ID] = d
	s.mu.Unlock()

	s.logEvent(ctx, creatorID, "create", "override_device", d.ID, d.DisplayName)
	cp := *d
	return &cp, nil
}

// UpdateDevice applies the non-nil fields of req to the device with id.
func (s *Store) UpdateDevice(ctx context.Context, id string, req domain.UpdateDeviceRequest, updaterID string) (*domain.Device, error) {
	cur, ok := s.GetDevice(id)
	if !ok {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}

	next := *cur
	applyDeviceUpdate(&next, req)
	if strings.TrimSpace(next.DisplayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrValidation)
	}
	name, devID := changed(cur.DisplayName, next.DisplayName), changed(cur.DeviceID, next.DeviceID)
	if name != "" || devID != "" {
		if idx := s.identityIndex(); idx != nil && idx.IsDeviceNameInUse(ctx, name, devID, id) {
			return nil, fmt.Errorf("%w: device name or device id belongs to another device", ErrConflict)
		}
	}

	s.mu.Lock()
	stored, ok := s.devices[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, id)
	}
	if err := s.deviceConflictLocked(name, devID, id); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	applyDeviceUpdate(stored, req)
	stored.UpdatedAt = s.nowF()
	stored.UpdatedBy = updaterID
	out := *stored
	s.mu.Unlock()

	s.logEvent(ctx, updaterID, "update", "override_device", id, out.DisplayName)
	return &out, nil
}

// DeleteDevice removes the device with id and reports whether one was removed.
func (s *Store) DeleteDevice(ctx context.Context, id, actorID string) bool {
	s.mu.Lock()
	_, ok := s.devices[id]
	delete(s.devices, id)
	s.mu.Unlock()
	if ok {
		s.logEvent(ctx, actorID, "delete", "override_device", id, "")
	}
	return ok
}

// GetDevice returns a copy of the device with id.
func (s *Store) GetDevice(id string) (*domain.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

// ListDevices returns copies of all devices ordered by creation time.
func (s *Store) ListDevices() []*domain.Device {
	s.mu.RLock()
	out := make([]*domain.Device, 0, len(s.devices))
	for _, d := range s.devices {
		cp := *d
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindDevices returns the devices matching f.
func (s *Store) FindDevices(f dirdomain.Filter) []*domain.Device {
	var out []*domain.Device
	for _, d := range s.ListDevices() {
		if f.Matches(dirdomain.KindDevices, d.Record()) {
			out = append(out, d)
		}
	}
	return out
}

// Records returns every override record of kind as a directory record.
func (s *Store) Records(kind dirdomain.Kind) []dirdomain.Record {
	if kind == dirdomain.KindDevices {
		list := s.ListDevices()
		out := make([]dirdomain.Record, len(list))
		for i, d := range list {
			out[i] = d.Record()
		}
		return out
	}
	list := s.ListUsers()
	out := make([]dirdomain.Record, len(list))
	for i, u := range list {
		out[i] = u.Record()
	}
	return out
}

// Count returns the number of override records of kind.
func (s *Store) Count(kind dirdomain.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind == dirdomain.KindDevices {
		return len(s.devices)
	}
	return len(s.users)
}

// SeedIfEmpty inserts one sample user when there are no override users and one sample device when
// there are no override devices.
func (s *Store) SeedIfEmpty(ctx context.Context) {
	if s.Count(dirdomain.KindUsers) == 0 {
		if _, err := s.CreateUser(ctx, domain.CreateUserRequest{
			DisplayName:       "Sample Override User",
			UserPrincipalName: "sample.override@example.com",
			Mail:              "sample.override@example.com",
			JobTitle:          "Contractor",
			Department:        "Operations",
		}, "system"); err != nil {
			log.Printf("override: seed user: %v", err)
		}
	}
	if s.Count(dirdomain.KindDevices) == 0 {
		if _, err := s.CreateDevice(ctx, domain.CreateDeviceRequest{
			DisplayName:     "Sample Override Laptop",
			DeviceID:        "sample-override-device",
			OperatingSystem: "Windows",
			Model:           "Generic Laptop",
		}, "system"); err != nil {
			log.Printf("override: seed device: %v", err)
		}
	}
}

// userConflictLocked reports an override user other than excludeID sharing mail or upn. Caller holds s.mu.
func (s *Store) userConflictLocked(mail, upn, excludeID string) error {
	for id, u := range s.users {
		if id == excludeID {
			continue
		}
		if mail != "" && strings.EqualFold(u.Mail, mail) {
			return fmt.Errorf("%w: mail %s", ErrConflict, mail)
		}
		if upn != "" && strings.EqualFold(u.UserPrincipalName, upn) {
			return fmt.Errorf("%w: principal name %s", ErrConflict, upn)
		}
	}
	return nil
}

// deviceConflictLocked reports an override device other than excludeID sharing name or deviceID. Caller holds s.mu.
func (s *Store) deviceConflictLocked(name, deviceID, excludeID string) error {
	for id, d := range s.devices {
		if id == excludeID {
			continue
		}
		if name != "" && strings.EqualFold(d.DisplayName, name) {
			return fmt.Errorf("%w: device name %s", ErrConflict, name)
		}
		if deviceID != "" && strings.EqualFold(d.DeviceID, deviceID) {
			return fmt.Errorf("%w: device id %s", ErrConflict, deviceID)
		}
	}
	return nil
}

func (s *Store) logEvent(ctx context.Context, actorID, action, resource, resourceID, metadata string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, actorID, action, resource, resourceID, metadata)
}

func validateUser(displayName, mail, upn string) error {
	if strings.TrimSpace(displayName) == "" {
		return fmt.Errorf("%w: display name is required", ErrValidation)
	}
	if mail != "" && !emailRegex.MatchString(mail) {
		return fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	if upn != "" && !principalRegex.MatchString(upn) {
		return fmt.Errorf("%w: invalid user principal name", ErrValidation)
	}
	return nil
}

// changed returns next when it differs from prev (case-insensitively) and is non-empty.
func changed(prev, next string) string {
	if next == "" || strings.EqualFold(prev, next) {
		return ""
	}
	return next
}

func applyUserUpdate(u *domain.User, req domain.UpdateUserRequest) {
	setString(&u.DisplayName, req.DisplayName)
	setString(&u.GivenName, req.GivenName)
	setString(&u.Surname, req.Surname)
	setString(&u.UserPrincipalName, req.UserPrincipalName)
	setString(&u.Mail, req.Mail)
	setString(&u.JobTitle, req.JobTitle)
	setString(&u.Department, req.Department)
	setString(&u.OfficeLocation, req.OfficeLocation)
	setString(&u.MobilePhone, req.MobilePhone)
	setString(&u.EmployeeID, req.EmployeeID)
	setString(&u.CompanyName, req.CompanyName)
	setString(&u.UsageLocation, req.UsageLocation)
	if req.BusinessPhones != nil {
		u.BusinessPhones = append([]string(nil), (*req.BusinessPhones)...)
	}
	if req.AccountEnabled != nil {
		u.AccountEnabled = *req.AccountEnabled
	}
}

func applyDeviceUpdate(d *domain.Device, req domain.UpdateDeviceRequest) {
	setString(&d.DeviceID, req.DeviceID)
	setString(&d.DisplayName, req.DisplayName)
	setString(&d.OperatingSystem, req.OperatingSystem)
	setString(&d.OperatingSystemVersion, req.OperatingSystemVersion)
	setString(&d.TrustType, req.TrustType)
	setString(&d.Manufacturer, req.Manufacturer)
	setString(&d.Model, req.Model)
	if req.AccountEnabled != nil {
		d.AccountEnabled = *req.AccountEnabled
	}
	if req.IsCompliant != nil {
		d.IsCompliant = *req.IsCompliant
	}
	if req.IsManaged != nil {
		d.IsManaged = *req.IsManaged
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
