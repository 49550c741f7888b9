package main

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/statekit/internal/config"
	"github.com/vango-dev/statekit/internal/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statekit.yaml")
	data := `
url:
  noUrl: false
params:
  brand:
    oneOf: [gmc, chevrolet]
  year:
    pattern: '^\d{4}$'
    default: "2024"
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"sorted", []string{"encode", "year=2024", "brand=gmc"}, "#brand=gmc&year=2024"},
		{"sequence", []string{"encode", "tags=a|b"}, "#tags=a%7Cb"},
		{"empty omitted", []string{"encode", "a=", "b=1"}, "#b=1"},
		{"custom", []string{"encode", "--base", "?", "--delimiter", ",", "tags=a,b"}, "?tags=a%2Cb"},
		{"nothing", []string{"encode"}, "#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeBadPair(t *testing.T) {
	_, err := run(t, "encode", "novalue")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Category != errors.CategoryCLI {
		t.Errorf("err = %v, want a CLI error", err)
	}
}

func TestExplain(t *testing.T) {
	out, err := run(t, "explain")
	if err != nil {
		t.Fatal(err)
	}
	for _, code := range errors.GetAllCodes() {
		if !strings.Contains(out, code) {
			t.Errorf("explain output missing %s:\n%s", code, out)
		}
	}

	out, err = run(t, "--no-color", "explain", "s001")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "S001") || !strings.Contains(out, "Learn more") {
		t.Errorf("explain S001 =\n%s", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("--no-color output contains escape codes:\n%s", out)
	}

	if _, err := run(t, "explain", "X999"); err == nil {
		t.Error("unknown code should fail")
	}
}

func TestDecode(t *testing.T) {
	out, err := run(t, "decode", "https://example.com/build#brand=gmc&tags=a%7Cb")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got["brand"] != "gmc" {
		t.Errorf("brand = %v", got["brand"])
	}
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 2 {
		t.Errorf("tags = %v", got["tags"])
	}
}

func TestCheck(t *testing.T) {
	path := writeConfig(t)

	out, err := run(t, "check", "-c", path, "https://example.com/#brand=gmc")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "https://example.com/#brand=gmc&year=2024") {
		t.Errorf("canonical URL missing from output:\n%s", out)
	}

	out, err = run(t, "check", "-c", path, "https://example.com/#brand=ford&year=24")
	if !stderrors.Is(err, errRejected) {
		t.Fatalf("err = %v, want errRejected", err)
	}
	if !strings.Contains(out, "brand: ford") || !strings.Contains(out, "year: 24") {
		t.Errorf("invalid keys missing from output:\n%s", out)
	}
}

func TestCheckMissingConfig(t *testing.T) {
	_, err := run(t, "check", "-c", filepath.Join(t.TempDir(), "nope.yaml"), "https://example.com/")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Code != errors.CodeConfigNotFound {
		t.Errorf("err = %v, want %s", err, errors.CodeConfigNotFound)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, "init", dir); err != nil {
		t.Fatalf("init: %v", err)
	}

	cfg, err := config.LoadFile(filepath.Join(dir, config.ConfigFileName))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("starter config invalid: %v", err)
	}
	if cfg.Params["view"].Default != "grid" {
		t.Errorf("view default = %v", cfg.Params["view"].Default)
	}

	if _, err := run(t, "init", dir); err == nil {
		t.Error("init should refuse to overwrite without --force")
	}
	if _, err := run(t, "init", "--force", dir); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestVersionShort(t *testing.T) {
	out, err := run(t, "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("version = %q", out)
	}
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.New(errors.CodeConfigNotFound).WithDetail("missing"))
	if !strings.Contains(buf.String(), errors.CodeConfigNotFound) {
		t.Errorf("coded error not formatted:\n%s", buf.String())
	}

	buf.Reset()
	printError(&buf, stderrors.New("plain"))
	if !strings.Contains(buf.String(), "plain") {
		t.Errorf("plain error not printed:\n%s", buf.String())
	}
}
