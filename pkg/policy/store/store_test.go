package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"pilothouse-hq/ganymede/pkg/policy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore() *Store {
	return New(WithLogger(discardLogger()))
}

func testPolicy(id string, authority policy.Authority) *policy.Policy {
	return &policy.Policy{
		ID:                id,
		Name:              id,
		Scope:             policy.ScopeGlobal,
		Mode:              policy.ModeEnforce,
		Enabled:           true,
		AuthorityRequired: authority,
	}
}

// ============================================================
// CRUD and authority
// ============================================================

func TestCreateAndGet(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("p1", policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := s.Get("p1")
	if !ok {
		t.Fatal("Get did not find created policy")
	}
	if got.Name != "p1" {
		t.Errorf("Name = %q, want p1", got.Name)
	}
}

func TestCreateRejectsLowAuthority(t *testing.T) {
	s := newTestStore()
	err := s.Create(testPolicy("p1", policy.AuthorityAdmin), policy.AuthorityOperator)

	var aerr *policy.AuthorityError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *policy.AuthorityError", err)
	}
	if _, ok := s.Get("p1"); ok {
		t.Error("rejected policy was stored")
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("p1", policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := s.Create(testPolicy("p1", policy.AuthorityOperator), policy.AuthorityAdmin)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
}

func TestCreateRejectsInvalidPolicy(t *testing.T) {
	s := newTestStore()
	bad := testPolicy("p1", policy.AuthorityOperator)
	bad.Mode = "audit"

	err := s.Create(bad, policy.AuthorityAdmin)
	var verr *policy.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *policy.ValidationError", err)
	}
}

func TestUpdateChecksBothAuthorityLevels(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("p1", policy.AuthorityAdmin), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// An operator cannot touch an admin policy, even when the update
	// would lower its requirement.
	lowered := testPolicy("p1", policy.AuthorityOperator)
	err := s.Update(lowered, policy.AuthorityOperator)
	var aerr *policy.AuthorityError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *policy.AuthorityError", err)
	}

	// An admin cannot raise a policy above their own level.
	raised := testPolicy("p1", policy.AuthorityDGAI)
	if err := s.Update(raised, policy.AuthorityAdmin); !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *policy.AuthorityError", err)
	}

	if err := s.Update(lowered, policy.AuthorityAdmin); err != nil {
		t.Fatalf("legitimate update failed: %v", err)
	}
	got, _ := s.Get("p1")
	if got.AuthorityRequired != policy.AuthorityOperator {
		t.Errorf("AuthorityRequired = %v, want operator after update", got.AuthorityRequired)
	}
}

func TestUpdateMissingPolicy(t *testing.T) {
	s := newTestStore()
	err := s.Update(testPolicy("ghost", policy.AuthorityOperator), policy.AuthorityAdmin)

	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("p1", policy.AuthorityAdmin), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var aerr *policy.AuthorityError
	if err := s.Delete("p1", policy.AuthorityOperator); !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want *policy.AuthorityError", err)
	}
	if err := s.Delete("p1", policy.AuthorityAdmin); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get("p1"); ok {
		t.Error("policy still present after delete")
	}

	var nerr *NotFoundError
	if err := s.Delete("p1", policy.AuthorityAdmin); !errors.As(err, &nerr) {
		t.Fatalf("error = %v, want *NotFoundError", err)
	}
}

// ============================================================
// Snapshot semantics
// ============================================================

func TestSnapshotOrdering(t *testing.T) {
	s := newTestStore()
	for _, p := range []*policy.Policy{
		testPolicy("b-operator", policy.AuthorityOperator),
		testPolicy("a-operator", policy.AuthorityOperator),
		testPolicy("z-admin", policy.AuthorityAdmin),
	} {
		if err := s.Create(p, policy.AuthorityDGAI); err != nil {
			t.Fatalf("Create %s: %v", p.ID, err)
		}
	}

	var order []string
	for _, c := range s.Snapshot().Policies() {
		order = append(order, c.Policy.ID)
	}
	want := []string{"z-admin", "a-operator", "b-operator"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSnapshotIsImmutableUnderWrites(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("p1", policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	before := s.Snapshot()
	if err := s.Create(testPolicy("p2", policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}
	after := s.Snapshot()

	if before.Len() != 1 {
		t.Errorf("old snapshot Len = %d, want 1", before.Len())
	}
	if after.Len() != 2 {
		t.Errorf("new snapshot Len = %d, want 2", after.Len())
	}
	if before.Version == after.Version {
		t.Error("snapshot version unchanged after write")
	}
}

func TestGetReturnsClone(t *testing.T) {
	s := newTestStore()
	p := testPolicy("p1", policy.AuthorityOperator)
	p.Scope = policy.ScopeSegment
	p.Selector = map[string]string{"tier": "gold"}
	if err := s.Create(p, policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.Get("p1")
	got.Selector["tier"] = "bronze"

	again, _ := s.Get("p1")
	if again.Selector["tier"] != "gold" {
		t.Error("mutation through Get leaked into the store")
	}
}

func TestReplaceAll(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("old", policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	err := s.ReplaceAll([]*policy.Policy{
		testPolicy("new-a", policy.AuthorityOperator),
		testPolicy("new-b", policy.AuthorityOperator),
	})
	if err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	if _, ok := s.Get("old"); ok {
		t.Error("ReplaceAll kept a stale policy")
	}
	if s.Snapshot().Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Snapshot().Len())
	}
}

func TestReplaceAllKeepsStoreOnError(t *testing.T) {
	s := newTestStore()
	if err := s.Create(testPolicy("keep", policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
		t.Fatalf("Create: %v", err)
	}

	bad := testPolicy("bad", policy.AuthorityOperator)
	bad.Guards = []policy.Guard{{Condition: "metrics.cvr_1h >=", Message: "m"}}
	if err := s.ReplaceAll([]*policy.Policy{bad}); err == nil {
		t.Fatal("ReplaceAll accepted an uncompilable policy")
	}

	if _, ok := s.Get("keep"); !ok {
		t.Error("failed ReplaceAll lost the previous snapshot")
	}
}

func TestReplaceAllRejectsDuplicateIDs(t *testing.T) {
	s := newTestStore()
	err := s.ReplaceAll([]*policy.Policy{
		testPolicy("dup", policy.AuthorityOperator),
		testPolicy("dup", policy.AuthorityOperator),
	})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	s := newTestStore()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			if err := s.Create(testPolicy(id, policy.AuthorityOperator), policy.AuthorityAdmin); err != nil {
				t.Errorf("Create %s: %v", id, err)
			}
		}(i)
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			for _, c := range snap.Policies() {
				if c.Policy.ID == "" {
					t.Error("snapshot exposed a partially built policy")
				}
			}
		}()
	}
	wg.Wait()

	if s.Snapshot().Len() != 10 {
		t.Errorf("Len = %d, want 10", s.Snapshot().Len())
	}
}
