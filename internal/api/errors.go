package api

import (
	"errors"
	"net/http"

	"directory-sync/backend/internal/directory/client"
	"directory-sync/backend/internal/override"
	"directory-sync/backend/internal/schema"
	"directory-sync/backend/internal/syncer"
)

// ErrInvalidArgument is returned for an unknown kind, source or malformed parameter.
var ErrInvalidArgument = errors.New("api: invalid argument")

// Error kinds reported in the envelope's error field.
const (
	KindConfiguration   = "configuration"
	KindAuth            = "auth"
	KindConnectivity    = "connectivity"
	KindSchema          = "schema"
	KindValidation      = "validation"
	KindConflict        = "conflict"
	KindNotFound        = "not_found"
	KindIncompleteFetch = "incomplete_fetch"
	KindInProgress      = "in_progress"
	KindInternal        = "internal"
)

var errorKinds = []struct {
	target error
	kind   string
}{
	{override.ErrValidation, KindValidation},
	{ErrInvalidArgument, KindValidation},
	{override.ErrConflict, KindConflict},
	{override.ErrNotFound, KindNotFound},
	{syncer.ErrInProgress, KindInProgress},
	{syncer.ErrIncompleteFetch, KindIncompleteFetch},
	{syncer.ErrDisabled, KindConfiguration},
	{client.ErrConfiguration, KindConfiguration},
	{client.ErrAuth, KindAuth},
	{client.ErrConnectivity, KindConnectivity},
	{schema.ErrEmptySample, KindSchema},
}

// KindOf classifies err. nil yields "".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.target) {
			return ek.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInProgress:
		return http.StatusConflict
	case KindConfiguration, KindAuth, KindConnectivity, KindIncompleteFetch:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
