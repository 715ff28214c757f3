package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/TheBitDrifter/foreman"
	"gopkg.in/yaml.v3"
)

// manifest lists systems by name with their declared resource access.
// Resources are referred to by name and interned on load.
type manifest struct {
	Systems []systemEntry `yaml:"systems"`
}

type systemEntry struct {
	Name             string   `yaml:"name"`
	ReadsBeforeWrite []string `yaml:"reads_before_write"`
	Writes           []string `yaml:"writes"`
	ReadsAfterWrite  []string `yaml:"reads_after_write"`
}

func loadManifest(path string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return decodeManifest(f)
}

func decodeManifest(r io.Reader) (*manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *manifest) check() error {
	if len(m.Systems) == 0 {
		return fmt.Errorf("manifest declares no systems")
	}
	seen := make(map[string]int, len(m.Systems))
	for i, s := range m.Systems {
		if s.Name == "" {
			return fmt.Errorf("system #%d has no name", i)
		}
		if prev, ok := seen[s.Name]; ok {
			return fmt.Errorf("system %q declared twice (#%d and #%d)", s.Name, prev, i)
		}
		seen[s.Name] = i
	}
	return nil
}

// registry registers every system in manifest order. The systems have no
// run body; only their access matters here.
func (m *manifest) registry() *foreman.SystemRegistry {
	infos := make([]*foreman.SystemInfo, len(m.Systems))
	for i, s := range m.Systems {
		infos[i] = foreman.NewSystemInfo(s.Name, foreman.Access{
			ReadsBeforeWrite: resourceIDs(s.ReadsBeforeWrite),
			Writes:           resourceIDs(s.Writes),
			ReadsAfterWrite:  resourceIDs(s.ReadsAfterWrite),
		}, nil)
	}
	return foreman.Factory.NewRegistry(infos...)
}

func resourceIDs(names []string) []foreman.ResourceID {
	ids := make([]foreman.ResourceID, len(names))
	for i, name := range names {
		ids[i] = foreman.ResourceIDNamed(name)
	}
	return ids
}
