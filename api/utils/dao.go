package utils

import (
	"errors"
	"net/http"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/svcerr"
)

// CallerHeader carries the end-user's principal on every request; the
// gateway in front of this node is expected to have already verified the
// caller's signature and set this header itself (spec §6).
const CallerHeader = "X-Dao-Caller"

// ServiceCallerHeader carries the calling peer service's identity on
// inter-service RPCs (spec §6's service-to-service authorization checks,
// e.g. Votings calling Tasks.FinishEditTask).
const ServiceCallerHeader = "X-Dao-Service-Caller"

// Caller extracts and parses the end-user principal from the request.
func Caller(r *http.Request) (core.Principal, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return core.Principal{}, BadRequest(errors.New("missing " + CallerHeader))
	}
	p, err := core.ParsePrincipal(raw)
	if err != nil {
		return core.Principal{}, BadRequest(err)
	}
	return p, nil
}

// ServiceCaller extracts the raw service-caller identity string, or ""
// if the request carries none (an end-user call).
func ServiceCaller(r *http.Request) string {
	return r.Header.Get(ServiceCallerHeader)
}

// StatusForErr maps a svcerr.Error (or a plain error) onto the HTTP
// status code spec §7 implies for each error Kind.
func StatusForErr(err error) int {
	se, ok := err.(*svcerr.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch se.Kind {
	case svcerr.Validation:
		return http.StatusBadRequest
	case svcerr.Authorization:
		return http.StatusForbidden
	case svcerr.State:
		return http.StatusConflict
	case svcerr.Invariant:
		return http.StatusConflict
	case svcerr.Proof:
		return http.StatusUnprocessableEntity
	case svcerr.Transport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError converts a service-layer error into the matching
// HTTPError and returns it for the handler to propagate to
// WrapHandlerFunc.
func WriteServiceError(err error) error {
	return HTTPError(err, StatusForErr(err))
}
