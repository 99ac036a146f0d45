package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathAlwaysAllows(t *testing.T) {
	gate, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	decision, err := gate.Evaluate(context.Background(), Input{Symbol: "ETH-PERP", Side: "buy", Size: "1"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allow {
		t.Fatal("expected an unconfigured gate to default-allow")
	}
}

func writeModule(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.rego")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}
	return path
}

func TestLoad_DeniesAccordingToModule(t *testing.T) {
	module := `package gateway

default decision = {"allow": false, "deny": ["symbol not permitted"]}

decision = {"allow": true, "deny": []} {
	input.symbol == "ETH-PERP"
}`
	path := writeModule(t, module)

	gate, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	allowed, err := gate.Evaluate(context.Background(), Input{Symbol: "ETH-PERP", Side: "buy", Size: "1"})
	if err != nil {
		t.Fatalf("evaluate allowed case: %v", err)
	}
	if !allowed.Allow {
		t.Fatal("expected ETH-PERP to be allowed by the module")
	}

	denied, err := gate.Evaluate(context.Background(), Input{Symbol: "DOGE-PERP", Side: "buy", Size: "1"})
	if err != nil {
		t.Fatalf("evaluate denied case: %v", err)
	}
	if denied.Allow {
		t.Fatal("expected DOGE-PERP to be denied by the module")
	}
	if len(denied.Reasons) == 0 {
		t.Fatal("expected a denial reason from the module")
	}
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/path/policy.rego")
	if err == nil {
		t.Fatal("expected an error loading a nonexistent module path")
	}
}
