// Package config is the ambient YAML configuration loader shared by the
// cmd/ demo binaries, factoring out the read-file/unmarshal pair each of
// the teacher's own cmd/*/main.go repeats inline (e.g.
// controlplane/cmd/bird-adapter/server.go's LoadServerConfig).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path into cfg, which must be a pointer to a
// struct already populated with defaults — fields absent from the file
// keep their default value.
func Load(path string, cfg any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("failed to deserialize config: %w", err)
	}
	return nil
}
