// Package config loads and validates a node's node.yml (spec.md §6,
// SPEC_FULL.md §2 "Configuration"): the node's kind, each service's bind/
// external addresses, and paths to auxiliary configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Kind is the role a node plays, selecting which services Load's caller
// starts (spec.md §2, §6).
type Kind string

const (
	KindCentral Kind = "central"
	KindWorker  Kind = "worker"
	KindProxy   Kind = "proxy"
)

// ServiceAddr is one service's bind address (what the service listens on)
// and external address (what peers dial to reach it, e.g. behind a proxy
// or load balancer).
type ServiceAddr struct {
	Bind     string `yaml:"bind" validate:"required,hostname_port"`
	External string `yaml:"external" validate:"required"`
}

// Services names the bind/external address of every service a node may
// run (spec.md §6: api, drv, plr, reg, job, chk). A node of a given Kind
// only starts the subset relevant to it; the others are simply unused.
type Services struct {
	API ServiceAddr `yaml:"api" validate:"required"`
	Drv ServiceAddr `yaml:"drv" validate:"required"`
	Plr ServiceAddr `yaml:"plr" validate:"required"`
	Reg ServiceAddr `yaml:"reg" validate:"required"`
	Job ServiceAddr `yaml:"job" validate:"required"`
	Chk ServiceAddr `yaml:"chk" validate:"required"`
}

// Config is the parsed and validated contents of node.yml.
type Config struct {
	Kind     Kind     `yaml:"kind" validate:"required,oneof=central worker proxy"`
	Services Services `yaml:"services" validate:"required"`

	// Location is this node's own identifier within the federation (spec.md
	// §4.7: every wir.Location the planner places work at names one of
	// these). A worker's reg/job/chk services are all served on behalf of
	// this one location; the central node needs none of its own.
	Location string `yaml:"location" validate:"required_if=Kind worker"`

	// InfraListPath points at the list of known locations and their
	// registries, consumed by the registry client (spec.md §4.7 DOMAIN
	// wiring). Only the central node reads this; it is the seed for its
	// InfraStore.
	InfraListPath string `yaml:"infra_list_path" validate:"required_if=Kind central"`
	// CentralAPIAddr is the central node's api service address. A worker or
	// proxy node dials it to build the registry.Client every other
	// collaborator (planner, checker address book, job address resolver)
	// is layered on top of (SPEC_FULL.md §4.7).
	CentralAPIAddr string `yaml:"central_api_addr" validate:"required_unless=Kind central"`
	// PolicySecretPath is the JWK-set file holding this domain's
	// checker-authentication key (spec.md §4.9: "exactly one key").
	PolicySecretPath string `yaml:"policy_secret_path" validate:"required"`
	// PolicyDocPath points at the domain's policy document, loaded into a
	// PolicySet and served to the chk service as its Evaluator (spec.md
	// §4.9). Only a worker node's chk service reads this.
	PolicyDocPath string `yaml:"policy_doc_path" validate:"required_if=Kind worker"`
	// DataDir is where staged datasets and intermediate results are
	// written (spec.md §4.10).
	DataDir string `yaml:"data_dir" validate:"required"`

	// SessionIdleTimeout evicts a session after this long with no
	// activity (spec.md §5). Load defaults it to 30m when node.yml omits
	// the key; an explicit zero in the file is kept.
	SessionIdleTimeout Duration `yaml:"session_idle_timeout"`
	// LocationCacheTTL bounds how long the registry client trusts a
	// cached location→address mapping before refreshing it (spec.md §5,
	// SPEC_FULL.md §4.7: "default 6h").
	LocationCacheTTL Duration `yaml:"location_cache_ttl"`

	// MetricsBind, if set, serves Prometheus-format metrics over HTTP at
	// /metrics (spec.md §2 AMBIENT). Left empty, a node runs without a
	// metrics sink.
	MetricsBind string `yaml:"metrics_bind"`
}

var validate = validator.New()

// Load reads, parses, and validates node.yml at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{
		SessionIdleTimeout: Duration{30 * minute},
		LocationCacheTTL:   Duration{6 * hour},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}

	return cfg, nil
}
