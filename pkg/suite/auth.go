package suite

import (
	"context"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/report"
)

type AuthOptions struct {
	// Model is the class selector used for admission checks.
	Model string
	// SpecificModel is the concrete model an unprivileged caller must be
	// denied.
	SpecificModel string
}

func (o AuthOptions) withDefaults() AuthOptions {
	if !gateway.IsClassSelector(o.Model) {
		o.Model = DefaultModel
	}
	if o.SpecificModel == "" {
		o.SpecificModel = DefaultSpecificModel
	}
	return o
}

// Auth runs the unauthenticated, basic user and role based categories.
func (r *Runner) Auth(ctx context.Context, opts AuthOptions) error {
	opts = opts.withDefaults()
	for _, step := range []func(context.Context, AuthOptions) error{
		r.authUnauthenticated,
		r.authBasicUser,
		r.authRoles,
	} {
		if err := step(ctx, opts); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) authUnauthenticated(ctx context.Context, opts AuthOptions) error {
	r.logger().Info("[Category 1] Unauthenticated request tests")
	req := r.request(opts.Model, "Hello", 10)
	if err := r.checkRaw(ctx, report.Authentication, "No authentication", req, analyze.NoAuthRejection, gateway.Unauthenticated()); err != nil {
		return err
	}
	return r.checkRaw(ctx, report.Authentication, "Invalid token", req, analyze.InvalidTokenRejection, gateway.WithBearer(InvalidToken))
}

func (r *Runner) authBasicUser(ctx context.Context, opts AuthOptions) error {
	r.logger().Info("[Category 2] Basic user tests (no model:specific role)")
	if !r.Credentials.Sources().Any() {
		r.Result.Skip(report.Authorization, "Basic user tests", "No token or token_binary provided")
		return nil
	}
	classes := []string{gateway.ClassName(opts.Model)}
	if classes[0] != "big" {
		classes = append(classes, "big")
	}
	for _, class := range classes {
		selector := gateway.ClassSelector(class)
		name := "Basic user: " + selector
		judge := func(resp analyze.Response) analyze.Verdict { return analyze.ClassAdmission(selector, resp) }
		if _, err := r.check(ctx, report.Authorization, name, r.request(selector, "Say 'OK'", 10), judge); err != nil {
			return err
		}
	}
	_, err := r.check(ctx, report.Authorization, "Basic user: specific model (should fail)",
		r.request(opts.SpecificModel, "Say 'OK'", 10), analyze.SpecificModelDenial)
	return err
}

func (r *Runner) authRoles(ctx context.Context, opts AuthOptions) error {
	r.logger().Info("[Category 3] Role-based access tests")
	if !r.Credentials.CanScope() {
		r.Result.Skip(report.Authorization, "Role-based tests", "--token-binary required for role-based testing")
		return nil
	}
	_, err := r.check(ctx, report.Authorization, credentials.RoleModelSpecific+" role: specific model",
		r.request(opts.SpecificModel, "Say 'OK'", 10), analyze.SpecificModelElevated,
		gateway.AsRole(credentials.RoleModelSpecific))
	if err != nil {
		return err
	}
	judge := func(resp analyze.Response) analyze.Verdict {
		return analyze.RoleAccess("Admin", opts.Model, resp)
	}
	_, err = r.check(ctx, report.Authorization, credentials.RoleAdmin+" role: full access",
		r.request(opts.Model, "Say 'OK'", 10), judge, gateway.AsRole(credentials.RoleAdmin))
	return err
}
