package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	minute = time.Minute
	hour   = time.Hour
)

// Duration wraps time.Duration so node.yml can spell durations as plain
// strings ("6h", "30m") the way the rest of the ecosystem's YAML configs
// do, rather than requiring nanosecond integers.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}
