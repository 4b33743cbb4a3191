package auth

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"

	"github.com/jonwraymond/todos/observe"
)

// Policy constants of the decision document.
const (
	PolicyVersion = "2012-10-17"
	InvokeAction  = "execute-api:Invoke"
	EffectAllow   = "Allow"
	EffectDeny    = "Deny"

	// DenyPrincipal is reported on every Deny; it never identifies a caller.
	DenyPrincipal = "user"
)

// Statement is one policy statement.
type Statement struct {
	Action   string `json:"Action"`
	Effect   string `json:"Effect"`
	Resource string `json:"Resource"`
}

// PolicyDocument grants or denies invocation of the protected operations.
type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Decision is the outcome of one authorization.
type Decision struct {
	PrincipalID    string         `json:"principalId"`
	PolicyDocument PolicyDocument `json:"policyDocument"`

	// Identity is set on Allow.
	Identity *Identity `json:"-"`
}

// Allowed reports whether the decision grants invocation.
func (d Decision) Allowed() bool {
	return len(d.PolicyDocument.Statement) > 0 && d.PolicyDocument.Statement[0].Effect == EffectAllow
}

func newDecision(principal, effect string) Decision {
	return Decision{
		PrincipalID: principal,
		PolicyDocument: PolicyDocument{
			Version:   PolicyVersion,
			Statement: []Statement{{Action: InvokeAction, Effect: effect, Resource: "*"}},
		},
	}
}

// Allow returns an Allow decision for id.
func Allow(id *Identity) Decision {
	d := newDecision(id.Principal, EffectAllow)
	d.Identity = id
	return d
}

// Deny returns a Deny decision.
func Deny() Decision {
	return newDecision(DenyPrincipal, EffectDeny)
}

// TokenVerifier authenticates an Authorization header value.
type TokenVerifier interface {
	Verify(ctx context.Context, header string) (*Identity, error)
}

// Gate is the authorization entry point.
type Gate struct {
	verifier  TokenVerifier
	logger    observe.Logger
	decisions metric.Int64Counter
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the logger for denied requests.
func WithLogger(l observe.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithMeter records decisions on the todos.authz.decisions counter.
func WithMeter(m metric.Meter) GateOption {
	return func(g *Gate) {
		c, err := m.Int64Counter("todos.authz.decisions",
			metric.WithDescription("Authorization decisions by effect and failure kind"),
			metric.WithUnit("{decision}"),
		)
		if err == nil {
			g.decisions = c
		}
	}
}

// NewGate creates a Gate.
func NewGate(v TokenVerifier, opts ...GateOption) *Gate {
	g := &Gate{verifier: v, logger: observe.NopLogger()}
	g.decisions, _ = metricnoop.NewMeterProvider().Meter("noop").Int64Counter("todos.authz.decisions")
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize decides on a raw Authorization header value. It always returns
// a decision; verifier failures and panics both yield Deny.
func (g *Gate) Authorize(ctx context.Context, header string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = g.deny(ctx, fmt.Errorf("panic during verification: %v", r))
		}
	}()

	id, err := g.verifier.Verify(ctx, header)
	if err != nil {
		return g.deny(ctx, err)
	}

	g.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("effect", EffectAllow),
		attribute.String("kind", "none"),
	))
	g.logger.Debug(ctx, "request authorized",
		observe.Field{Key: "principal", Value: id.Principal},
		observe.Field{Key: "kid", Value: id.KeyID},
	)
	return Allow(id)
}

func (g *Gate) deny(ctx context.Context, err error) Decision {
	kind := Kind(err)
	g.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("effect", EffectDeny),
		attribute.String("kind", kind),
	))

	fields := []observe.Field{{Key: "error_kind", Value: kind}, observe.Err(err)}
	if kind == Kind(ErrKeySourceUnavailable) || kind == KindInternal {
		g.logger.Error(ctx, "request denied", fields...)
	} else {
		g.logger.Info(ctx, "request denied", fields...)
	}
	return Deny()
}
