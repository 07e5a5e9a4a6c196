package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/goxai/internal/app"
	"github.com/hyperifyio/goxai/internal/stub"
)

func stubConfig(t *testing.T, models ...string) (app.Config, *stub.Server) {
	t.Helper()
	t.Setenv("LLM_XAI_KEY", "")
	t.Setenv("XAI_KEY", "")
	s := stub.New(models...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return app.Config{
		APIKey:    "test-key",
		APIBase:   srv.URL + "/v1/",
		ModelsURL: srv.URL + "/v1/models",
		UserDir:   t.TempDir(),
	}, s
}

func TestRun_Models(t *testing.T) {
	cfg, _ := stubConfig(t, "grok-3")
	var out strings.Builder
	if err := run(context.Background(), cfg, []string{"models"}, &out); err != nil {
		t.Fatalf("run models: %v", err)
	}
	want := "xAI: xAI/grok-3\nxAI: xAIcompletion/grok-3\n"
	if out.String() != want {
		t.Fatalf("models output=%q, want %q", out.String(), want)
	}
}

func TestRun_PromptWithOptions(t *testing.T) {
	cfg, s := stubConfig(t, "grok-3-mini")
	var out strings.Builder
	args := []string{"prompt", "-m", "xAI/grok-3-mini", "-o", "temperature=0.5", "-o", "reasoning_effort=low", "why", "not"}
	if err := run(context.Background(), cfg, args, &out); err != nil {
		t.Fatalf("run prompt: %v", err)
	}
	if !strings.Contains(out.String(), "Final Response:\necho: why not") {
		t.Fatalf("unexpected output %q", out.String())
	}
	req, _ := s.LastChat()
	if req.Stream || req.ReasoningEffort != "low" {
		t.Fatalf("reasoning request must not stream: %+v", req)
	}
}

func TestRun_Usage(t *testing.T) {
	cfg, _ := stubConfig(t)
	for _, args := range [][]string{nil, {"bogus"}, {"prompt", "-m", "xAI/grok-3"}} {
		if err := run(context.Background(), cfg, args, &strings.Builder{}); !errors.Is(err, errUsage) {
			t.Fatalf("args %q: expected usage error, got %v", args, err)
		}
	}
}

func TestRun_Version(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), app.Config{}, []string{"version"}, &out); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "goxai "+app.BuildVersion) {
		t.Fatalf("version output=%q", out.String())
	}
}

func TestOptionFlag(t *testing.T) {
	o := optionFlag{}
	if err := o.Set("max_tokens = 10"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := o.Set("novalue"); err == nil {
		t.Fatalf("expected error for missing '='")
	}
	if o["max_tokens"] != "10" || o.String() != "max_tokens=10" {
		t.Fatalf("unexpected flag state %v", o)
	}
}

func TestLoadConfig_ConfigPathFromDotenv(t *testing.T) {
	t.Setenv(app.EnvConfigPath, "")
	t.Setenv(app.EnvAPIBase, "")
	t.Setenv(app.EnvModelsURL, "")
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "goxai.yaml")
	if err := os.WriteFile(cfgFile, []byte("apiBase: http://file/v1/\nmodels:\n  url: http://file/v1/models\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envFile := filepath.Join(dir, ".env")
	dotenv := app.EnvConfigPath + "=" + cfgFile + "\n" + app.EnvModelsURL + "=http://env/v1/models\n"
	if err := os.WriteFile(envFile, []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}

	cfg, err := loadConfig([]string{envFile}, "")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.APIBase != "http://file/v1/" {
		t.Fatalf("config file named in dotenv not loaded: %+v", cfg)
	}
	if cfg.ModelsURL != "http://env/v1/models" {
		t.Fatalf("env should override config file: %+v", cfg)
	}
}

func TestLoadConfig_MissingConfigFile(t *testing.T) {
	if _, err := loadConfig(nil, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
