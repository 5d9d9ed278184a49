package suite

import (
	"context"
	"strings"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/report"
)

const routingPrompt = "Respond with just 'OK'."

// DefaultRoutingModels is used when a comprehensive run names no models.
var DefaultRoutingModels = []string{"class:fast", "class:big"}

type RoutingOptions struct {
	// Models are requested in order. A class selector must resolve to a
	// concrete model; a concrete id must be served.
	Models []string
	// Permissions runs the role based access checks instead.
	Permissions bool
	// SpecificModel is used by the permission checks when /v1/models lists
	// nothing usable.
	SpecificModel string
}

// Routing checks that each requested model is routed and resolved.
func (r *Runner) Routing(ctx context.Context, opts RoutingOptions) error {
	if opts.Permissions {
		return r.routingPermissions(ctx, opts)
	}
	models := opts.Models
	if len(models) == 0 {
		models = DefaultRoutingModels
	}
	r.logger().Info("Starting model routing test", "models", strings.Join(models, ", "))
	for _, model := range models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		judge := func(resp analyze.Response) analyze.Verdict { return analyze.Routing(model, resp) }
		resp, err := r.check(ctx, report.Routing, model, r.request(model, routingPrompt, 10), judge)
		if err != nil {
			return err
		}
		if resp.OK() {
			r.logger().Debug("resolved", "requested", model, "model", resp.ResolvedModel)
		}
	}
	return nil
}

func (r *Runner) routingPermissions(ctx context.Context, opts RoutingOptions) error {
	r.logger().Info("Starting permission-based access test")

	r.logger().Info("[Test 1] Class request (should work for all users)")
	judge := func(resp analyze.Response) analyze.Verdict { return analyze.ClassAdmission(DefaultModel, resp) }
	if _, err := r.check(ctx, report.Authorization, DefaultModel+" (basic user)", r.request(DefaultModel, routingPrompt, 10), judge); err != nil {
		return err
	}

	r.logger().Info("[Test 2] Specific model request (should fail without model:specific role)")
	model := opts.SpecificModel
	if model == "" {
		model = DefaultSpecificModel
	}
	list, err := r.Gateway.ListModels(ctx)
	switch {
	case err == nil:
		if id, ok := gateway.FirstSpecificModel(list); ok {
			model = id
		}
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		r.logger().Debug("could not list models, using default", "model", model, "err", err)
	}
	if _, err := r.check(ctx, report.Authorization, "Permission check for "+model,
		r.request(model, "This should fail.", 10), analyze.SpecificModelDenial); err != nil {
		return err
	}

	name := model + " (with model:specific role)"
	if !r.Credentials.CanScope() {
		r.Result.Record(report.Authorization, name, analyze.Info("Skipped (no token binary provided for role-based testing)"))
		return nil
	}
	r.logger().Info("[Test 3] Specific model request with model:specific role")
	resp, err := r.Gateway.ChatCompletion(ctx, r.request(model, routingPrompt, 10), gateway.AsRole(credentials.RoleModelSpecific))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && credentials.IsAcquisitionError(err) {
		r.Result.Record(report.Authorization, name, analyze.Warn("Could not test with model:specific role: %v", err))
		return nil
	}
	r.Result.Record(report.Authorization, name, analyze.SpecificRouting(model, analyze.FromCall(resp, err)))
	return nil
}
