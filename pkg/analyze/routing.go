package analyze

import (
	"net/http"

	"github.com/lkarlslund/gwprobe/pkg/gateway"
)

// RoutingResolution inspects a successful response. The reported model must
// be present, and a class request must come back as a concrete model.
func RoutingResolution(requested string, r Response) Verdict {
	resolved := r.ResolvedModel
	if gateway.IsClassSelector(requested) {
		if resolved == "" || gateway.IsClassSelector(resolved) {
			return Fail("Class request succeeded but the model was not resolved (model: %q)", resolved)
		}
		return Pass("Class request routed to %s", resolved)
	}
	if resolved == "" {
		return Fail("Response did not report a model")
	}
	if requested == "" || resolved == requested {
		return Pass("Request routed to %s", resolved)
	}
	return Pass("Request routed to %s (requested %s)", resolved, requested)
}

// ClassRouting judges a class request when routing is under test. Unlike
// ClassAdmission, a gateway with no capacity for the class fails here.
func ClassRouting(selector string, r Response) Verdict {
	if r.Err != nil {
		if r.Timeout() {
			return Fail("Request timed out")
		}
		return Fail("%v", r.Err)
	}
	if r.OK() {
		return RoutingResolution(selector, r)
	}
	if r.StatusCode == http.StatusInternalServerError {
		switch {
		case gateway.NoModelsOfClass(r.Body):
			return Fail("No models configured for class '%s'", gateway.ClassName(selector))
		case gateway.NoCapacity(r.Body):
			return Fail("No runners available")
		}
	}
	return Fail("HTTP %d: %s", r.StatusCode, body(r))
}

// SpecificRouting judges a concrete model request when routing is under
// test.
func SpecificRouting(model string, r Response) Verdict {
	if r.Err != nil {
		if r.Timeout() {
			return Fail("Request timed out")
		}
		return Fail("%v", r.Err)
	}
	if r.OK() {
		return RoutingResolution(model, r)
	}
	if r.StatusCode == http.StatusBadRequest {
		if gateway.PermissionDenied(r.Body) {
			return Fail("Permission denied: user lacks model:specific role")
		}
		return Fail("Bad Request: %s", body(r))
	}
	return Fail("HTTP %d: %s", r.StatusCode, body(r))
}

// Routing dispatches to ClassRouting or SpecificRouting by model shape.
func Routing(model string, r Response) Verdict {
	if gateway.IsClassSelector(model) {
		return ClassRouting(model, r)
	}
	return SpecificRouting(model, r)
}
