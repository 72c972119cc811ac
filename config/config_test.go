package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
kind: worker
location: site-a
services:
  api:
    bind: "127.0.0.1:9000"
    external: "node-a.example.com:9000"
  drv:
    bind: "127.0.0.1:9001"
    external: "node-a.example.com:9001"
  plr:
    bind: "127.0.0.1:9002"
    external: "node-a.example.com:9002"
  reg:
    bind: "127.0.0.1:9003"
    external: "node-a.example.com:9003"
  job:
    bind: "127.0.0.1:9004"
    external: "node-a.example.com:9004"
  chk:
    bind: "127.0.0.1:9005"
    external: "node-a.example.com:9005"
central_api_addr: central.example.com:9000
policy_secret_path: /etc/brane/policy.jwk
policy_doc_path: /etc/brane/policy.yml
data_dir: /var/lib/brane/data
location_cache_ttl: 2h
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Kind != KindWorker {
		t.Fatalf("Kind = %q, want worker", cfg.Kind)
	}
	if cfg.Services.API.Bind != "127.0.0.1:9000" {
		t.Fatalf("Services.API.Bind = %q", cfg.Services.API.Bind)
	}
	if cfg.LocationCacheTTL.Duration != 2*time.Hour {
		t.Fatalf("LocationCacheTTL = %v, want 2h", cfg.LocationCacheTTL.Duration)
	}
	if cfg.SessionIdleTimeout.Duration != 30*time.Minute {
		t.Fatalf("SessionIdleTimeout default = %v, want 30m", cfg.SessionIdleTimeout.Duration)
	}
}

func TestLoad_RejectsMissingRequiredField(t *testing.T) {
	bad := `
kind: worker
services:
  api:
    bind: "127.0.0.1:9000"
    external: "node-a.example.com:9000"
`
	if _, err := Load(writeTemp(t, bad)); err == nil {
		t.Fatalf("expected validation error for missing required services")
	}
}

func TestLoad_RejectsUnknownKind(t *testing.T) {
	bad := `
kind: bogus
services:
  api: {bind: "127.0.0.1:9000", external: "a:9000"}
  drv: {bind: "127.0.0.1:9001", external: "a:9001"}
  plr: {bind: "127.0.0.1:9002", external: "a:9002"}
  reg: {bind: "127.0.0.1:9003", external: "a:9003"}
  job: {bind: "127.0.0.1:9004", external: "a:9004"}
  chk: {bind: "127.0.0.1:9005", external: "a:9005"}
infra_list_path: /etc/brane/infra.yml
policy_secret_path: /etc/brane/policy.jwk
data_dir: /var/lib/brane/data
`
	if _, err := Load(writeTemp(t, bad)); err == nil {
		t.Fatalf("expected validation error for an unrecognized kind")
	}
}
