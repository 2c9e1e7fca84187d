package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pilothouse-hq/ganymede/pkg/policy"
)

// policyFile is the YAML document shape for a policy file. A file holds
// either a single policy or a "policies" list.
type policyFile struct {
	Policies []*policy.Policy `yaml:"policies"`
}

// LoadFile parses one YAML policy file. The file may contain a single
// policy document or a "policies" list.
func LoadFile(path string) ([]*policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Policies) > 0 {
		return file.Policies, nil
	}

	var single policy.Policy
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if single.ID == "" {
		return nil, fmt.Errorf("policy file %s contains no policies", path)
	}
	return []*policy.Policy{&single}, nil
}

// LoadDir loads every .yaml/.yml file in dir, in lexical filename order so
// repeated loads produce the same policy ordering.
func LoadDir(dir string) ([]*policy.Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)

	var policies []*policy.Policy
	for _, path := range paths {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		policies = append(policies, loaded...)
	}
	return policies, nil
}

// LoadIntoStore loads the directory and atomically replaces the store's
// policy set. On any load or compile error the store keeps its previous
// snapshot.
func LoadIntoStore(s *Store, dir string) error {
	policies, err := LoadDir(dir)
	if err != nil {
		return err
	}
	return s.ReplaceAll(policies)
}
