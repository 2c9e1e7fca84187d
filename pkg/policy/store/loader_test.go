package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const singlePolicyYAML = `id: solo
name: solo policy
scope: global
mode: enforce
enabled: true
authority_required: operator
guards:
  - condition: "metrics.cvr_1h >= 0.02"
    message: "conversion rate too low"
`

const listPolicyYAML = `policies:
  - id: list-a
    name: first
    scope: global
    mode: monitor
    enabled: true
    authority_required: operator
  - id: list-b
    name: second
    scope: algorithm
    selector:
      algo_key: traffic_mix
    mode: enforce
    enabled: true
    authority_required: admin
`

func TestLoadFileSinglePolicy(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "solo.yaml", singlePolicyYAML)

	policies, err := LoadFile(filepath.Join(dir, "solo.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(policies) != 1 || policies[0].ID != "solo" {
		t.Fatalf("policies = %+v, want one policy with ID solo", policies)
	}
	if len(policies[0].Guards) != 1 {
		t.Errorf("Guards = %d, want 1", len(policies[0].Guards))
	}
}

func TestLoadFilePolicyList(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "list.yaml", listPolicyYAML)

	policies, err := LoadFile(filepath.Join(dir, "list.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("policies = %d, want 2", len(policies))
	}
	if policies[1].Selector["algo_key"] != "traffic_mix" {
		t.Errorf("Selector = %v, want algo_key traffic_mix", policies[1].Selector)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "garbage.yaml", "policies: [broken\n")
	writePolicyFile(t, dir, "empty.yaml", "name: no id here\n")

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile accepted a missing file")
	}
	if _, err := LoadFile(filepath.Join(dir, "garbage.yaml")); err == nil {
		t.Error("LoadFile accepted unparseable YAML")
	}
	if _, err := LoadFile(filepath.Join(dir, "empty.yaml")); err == nil {
		t.Error("LoadFile accepted a file with no policies")
	}
}

func TestLoadDirLexicalOrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "20-second.yaml", singleWithID("second"))
	writePolicyFile(t, dir, "10-first.yml", singleWithID("first"))
	writePolicyFile(t, dir, ".hidden.yaml", singleWithID("hidden"))
	writePolicyFile(t, dir, "notes.txt", "not a policy")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	policies, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("policies = %d, want 2", len(policies))
	}
	if policies[0].ID != "first" || policies[1].ID != "second" {
		t.Errorf("order = [%s %s], want [first second]", policies[0].ID, policies[1].ID)
	}
}

func TestLoadIntoStore(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "a.yaml", singleWithID("a"))

	s := newTestStore()
	if err := LoadIntoStore(s, dir); err != nil {
		t.Fatalf("LoadIntoStore: %v", err)
	}
	if _, ok := s.Get("a"); !ok {
		t.Fatal("loaded policy not in store")
	}

	// A broken directory load keeps the previous snapshot.
	writePolicyFile(t, dir, "b.yaml", "id: b\nname: broken\nscope: nowhere\nmode: enforce\n")
	if err := LoadIntoStore(s, dir); err == nil {
		t.Fatal("LoadIntoStore accepted an invalid policy")
	}
	if _, ok := s.Get("a"); !ok {
		t.Error("failed reload lost the previous snapshot")
	}
}

func singleWithID(id string) string {
	return "id: " + id + "\nname: " + id + "\nscope: global\nmode: enforce\nenabled: true\nauthority_required: operator\n"
}
