// Package policy implements the optional admission policy gate (A7):
// a Rego rule evaluated against the parsed signal after schema
// validation and before deduplication. Unconfigured, it default-allows.
package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/open-policy-agent/opa/rego"
)

// Input is what gets evaluated against the configured policy.
type Input struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Size   string `json:"size"`
	Token  string `json:"token"`
}

// Decision is the gate's verdict: Allow false means the admission
// rule denied the signal; Reasons carries human-readable denial text
// for the error log.
type Decision struct {
	Allow   bool
	Reasons []string
}

// Gate evaluates an optional Rego policy. A Gate constructed with no
// module (empty path) always allows.
type Gate struct {
	query rego.PreparedEvalQuery
	armed bool
}

// Load compiles the Rego module at path. An empty path yields a Gate
// that always allows — the default-allow-when-unconfigured behavior.
func Load(ctx context.Context, path string) (*Gate, error) {
	if path == "" {
		return &Gate{armed: false}, nil
	}

	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read module: %w", err)
	}

	query, err := rego.New(
		rego.Query("data.gateway.decision"),
		rego.Module(path, string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile module: %w", err)
	}

	return &Gate{query: query, armed: true}, nil
}

// Evaluate runs the configured policy against in. The policy's Rego
// output is expected to shape a `{"allow": bool, "deny": [string]}`
// object bound to data.gateway.decision; a malformed or empty result
// fails open (allow=true) so a broken policy module cannot itself
// take the gateway down.
func (g *Gate) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if !g.armed {
		return Decision{Allow: true}, nil
	}

	ectx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	results, err := g.query.Eval(ectx, rego.EvalInput(map[string]interface{}{
		"symbol": in.Symbol,
		"side":   in.Side,
		"size":   in.Size,
		"token":  in.Token,
	}))
	if err != nil {
		return Decision{Allow: true}, fmt.Errorf("policy: eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Allow: true}, nil
	}

	decision, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Allow: true}, nil
	}

	allow, ok := decision["allow"].(bool)
	if !ok {
		return Decision{Allow: true}, nil
	}
	var reasons []string
	if denyRaw, ok := decision["deny"].([]interface{}); ok {
		for _, d := range denyRaw {
			if s, ok := d.(string); ok {
				reasons = append(reasons, s)
			}
		}
	}

	return Decision{Allow: allow, Reasons: reasons}, nil
}
