package analyze

import (
	"net/http"

	"github.com/lkarlslund/gwprobe/pkg/gateway"
)

// NoAuthRejection expects a request without credentials to be refused with
// 401, 403 or 400.
func NoAuthRejection(r Response) Verdict {
	if r.Err != nil {
		return requestFailed(r)
	}
	switch r.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Pass("Correctly rejected with %d", r.StatusCode)
	case http.StatusBadRequest:
		return Pass("Rejected with 400 (missing auth)")
	default:
		return Fail("Unexpected status code: %d", r.StatusCode)
	}
}

// InvalidTokenRejection expects a well-formed but bogus token to be refused
// with exactly 401.
func InvalidTokenRejection(r Response) Verdict {
	if r.Err != nil {
		return requestFailed(r)
	}
	if r.StatusCode == http.StatusUnauthorized {
		return Pass("Correctly rejected invalid token")
	}
	return Fail("Unexpected status code: %d", r.StatusCode)
}

// ClassAdmission checks that an unprivileged caller may use a class
// selector. A 500 naming missing runners or models means the request was
// admitted but had nothing to run on, so it passes. Any other 500 fails.
func ClassAdmission(selector string, r Response) Verdict {
	if r.Err != nil {
		return requestFailed(r)
	}
	switch {
	case r.OK():
		return Pass("Class request %s succeeded", selector)
	case r.StatusCode == http.StatusBadRequest && gateway.PermissionDenied(r.Body):
		return Fail("Basic user denied class request (unexpected)")
	case r.StatusCode == http.StatusBadRequest:
		return Fail("Bad request: %s", body(r))
	case r.StatusCode == http.StatusInternalServerError && gateway.NoCapacity(r.Body):
		return Pass("Class request attempted (got 500 - likely no runners/models)")
	case r.StatusCode == http.StatusInternalServerError:
		return Fail("Server error: %s", body(r))
	default:
		return Fail("Unexpected status: %d", r.StatusCode)
	}
}

// SpecificModelDenial expects an unprivileged request for a concrete model
// to be refused with 400 and a permission message.
func SpecificModelDenial(r Response) Verdict {
	if r.Err != nil {
		return requestFailed(r)
	}
	switch {
	case r.OK():
		return Fail("Specific model request succeeded (should have been denied)")
	case r.StatusCode == http.StatusBadRequest && gateway.PermissionDenied(r.Body):
		return Pass("Correctly denied specific model request")
	case r.StatusCode == http.StatusBadRequest:
		return Fail("Unexpected 400 error: %s", body(r))
	default:
		return Fail("Unexpected status: %d", r.StatusCode)
	}
}

// SpecificModelElevated checks a concrete model request made with the
// model:specific role. Only a permission denial fails it; other HTTP
// failures are unrelated to authorization and pass as inconclusive.
func SpecificModelElevated(r Response) Verdict {
	if r.Err != nil {
		return requestFailed(r)
	}
	switch {
	case r.OK():
		return Pass("Specific model request succeeded with model:specific role")
	case gateway.PermissionDenied(r.Body):
		return Fail("Denied even with model:specific role")
	default:
		return Pass("Not denied (request failed with status %d: %s)", r.StatusCode, gateway.Truncate(r.Body, 100))
	}
}

// RoleAccess checks that a role-scoped caller can use a class selector.
func RoleAccess(role, selector string, r Response) Verdict {
	if r.Err != nil {
		return requestFailed(r)
	}
	if r.OK() {
		return Pass("%s role can access %s", role, selector)
	}
	return Fail("%s request failed with status %d", role, r.StatusCode)
}
