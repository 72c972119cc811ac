package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadInfraList reads a node's configured infra_list_path (spec.md §2,
// "paths to auxiliary config (infra list...)"): a YAML document listing
// every known location and its registered service addresses, seeded into
// an InfraStore at central-node startup.
func LoadInfraList(path string) ([]Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("api: reading infra list %s: %w", path, err)
	}
	var regs []Registration
	if err := yaml.Unmarshal(data, &regs); err != nil {
		return nil, fmt.Errorf("api: parsing infra list %s: %w", path, err)
	}
	return regs, nil
}
