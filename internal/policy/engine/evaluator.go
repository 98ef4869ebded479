// Package engine evaluates the notify admission policy with OPA Rego.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

// DefaultPolicy admits every notification. Operators override it with NOTIFY_POLICY_FILE.
// A policy lives in package notifyhub.notify and defines allow (bool) and optionally reason (string).
const DefaultPolicy = `package notifyhub.notify

default allow := true
`

const policyQuery = "data.notifyhub.notify"

// ErrNoDecision is returned when the policy leaves allow undefined or non-boolean.
var ErrNoDecision = errors.New("policy: no allow decision")

// Input is what the policy sees about a notify request.
type Input struct {
	UserID   string
	Title    string
	Body     string
	MetaSize int
	Source   string
}

func (in Input) toMap() map[string]any {
	return map[string]any{
		"user_id":   in.UserID,
		"title":     in.Title,
		"body":      in.Body,
		"meta_size": in.MetaSize,
		"source":    in.Source,
	}
}

// Decision is the policy outcome. Reason is set only when the policy provides one.
type Decision struct {
	Allow  bool
	Reason string
}

// Evaluator holds a compiled, prepared policy. Safe for concurrent use.
type Evaluator struct {
	query rego.PreparedEvalQuery
	log   *zap.Logger
}

// LoadPolicy returns the Rego module at path, or DefaultPolicy when path is empty.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return DefaultPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// NewEvaluator compiles module (DefaultPolicy when empty) and prepares the admission query.
func NewEvaluator(ctx context.Context, module string, log *zap.Logger) (*Evaluator, error) {
	if module == "" {
		module = DefaultPolicy
	}
	if log == nil {
		log = zap.NewNop()
	}
	compiler, err := ast.CompileModules(map[string]string{"notify.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(rego.Query(policyQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &Evaluator{query: q, log: log.With(zap.String("component", "policy"))}, nil
}

// Evaluate runs the policy for in. Evaluation errors and undefined decisions are returned as
// errors; callers treat them as failures, not as admission.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return Decision{}, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, ErrNoDecision
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, ErrNoDecision
	}
	allow, ok := doc["allow"].(bool)
	if !ok {
		return Decision{}, ErrNoDecision
	}
	d := Decision{Allow: allow}
	if reason, ok := doc["reason"].(string); ok {
		d.Reason = reason
	}
	if !d.Allow {
		e.log.Info("notify denied by policy", zap.String("user_id", in.UserID), zap.String("reason", d.Reason))
	}
	return d, nil
}

// HealthCheck evaluates the prepared policy against a fixed input. Used by /readyz.
func (e *Evaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Evaluate(ctx, Input{UserID: "healthcheck", Title: "healthcheck", Source: "health"})
	return err
}
