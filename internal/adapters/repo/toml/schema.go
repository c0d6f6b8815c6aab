package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Profiles []profileSchema `toml:"profiles"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported sessions schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type profileSchema struct {
	Name     string          `toml:"name"`
	Sessions []sessionSchema `toml:"sessions"`
}

type sessionSchema struct {
	ID       string `toml:"id"`
	TokenRef string `toml:"token_ref"`
	Issued   string `toml:"issued"`
	Expires  string `toml:"expires"`
	Used     string `toml:"used,omitempty"`
}
