package store

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"pilothouse-hq/ganymede/pkg/policy"
)

// Snapshot is an immutable view of the policy set at a point in time.
// Evaluators take one snapshot per evaluation; the policies it holds are
// never mutated after construction.
type Snapshot struct {
	// Version identifies this snapshot's content.
	Version string

	// LoadTime is when the snapshot was built.
	LoadTime time.Time

	policies []*policy.Compiled
	byID     map[string]*policy.Compiled
}

// Policies returns all policies in deterministic evaluation order:
// required authority descending, then ID ascending.
func (s *Snapshot) Policies() []*policy.Compiled {
	return s.policies
}

// Get returns the compiled policy with the given ID, enabled or not.
func (s *Snapshot) Get(id string) (*policy.Compiled, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Len returns the number of policies in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.byID)
}

// Store is the versioned policy collection. Reads are lock-free against an
// immutable snapshot; writes build a new snapshot and atomically swap it.
type Store struct {
	snapshot atomic.Pointer[Snapshot]

	// writeMu serializes writers; readers never take it.
	writeMu    sync.Mutex
	generation uint64

	// location is the store timezone, used for daily risk budget
	// boundaries.
	location *time.Location

	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTimezone sets the store timezone used for day boundaries.
func WithTimezone(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty policy store.
func New(opts ...Option) *Store {
	s := &Store{
		location: time.UTC,
		logger:   slog.Default().With("component", "policy.store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(s.buildSnapshot(nil))
	return s
}

// Location returns the store timezone.
func (s *Store) Location() *time.Location {
	return s.location
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Create validates, compiles, and adds a policy. The caller's authority
// must meet the policy's required level and the ID must be unused.
func (s *Store) Create(p *policy.Policy, caller policy.Authority) error {
	compiled, err := policy.Compile(p.Clone())
	if err != nil {
		return err
	}
	if !caller.AtLeast(p.AuthorityRequired) {
		return &policy.AuthorityError{PolicyID: p.ID, Required: p.AuthorityRequired, Actual: caller}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snapshot.Load()
	if _, exists := current.byID[p.ID]; exists {
		return &ConflictError{ID: p.ID}
	}

	next := append(s.compiledList(current), compiled)
	s.swap(next)

	s.logger.Info("policy created", "policy_id", p.ID, "scope", p.Scope, "mode", p.Mode)
	return nil
}

// Update replaces an existing policy. The caller must satisfy both the
// stored policy's required authority and the incoming one's, so a lower
// authority cannot take over a policy by lowering its requirement.
func (s *Store) Update(p *policy.Policy, caller policy.Authority) error {
	compiled, err := policy.Compile(p.Clone())
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snapshot.Load()
	existing, ok := current.byID[p.ID]
	if !ok {
		return &NotFoundError{ID: p.ID}
	}
	if !caller.AtLeast(existing.Policy.AuthorityRequired) {
		return &policy.AuthorityError{PolicyID: p.ID, Required: existing.Policy.AuthorityRequired, Actual: caller}
	}
	if !caller.AtLeast(p.AuthorityRequired) {
		return &policy.AuthorityError{PolicyID: p.ID, Required: p.AuthorityRequired, Actual: caller}
	}

	var next []*policy.Compiled
	for _, c := range s.compiledList(current) {
		if c.Policy.ID == p.ID {
			next = append(next, compiled)
		} else {
			next = append(next, c)
		}
	}
	s.swap(next)

	s.logger.Info("policy updated", "policy_id", p.ID)
	return nil
}

// Delete removes a policy. The caller must satisfy the stored policy's
// required authority.
func (s *Store) Delete(id string, caller policy.Authority) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current := s.snapshot.Load()
	existing, ok := current.byID[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if !caller.AtLeast(existing.Policy.AuthorityRequired) {
		return &policy.AuthorityError{PolicyID: id, Required: existing.Policy.AuthorityRequired, Actual: caller}
	}

	var next []*policy.Compiled
	for _, c := range s.compiledList(current) {
		if c.Policy.ID != id {
			next = append(next, c)
		}
	}
	s.swap(next)

	s.logger.Info("policy deleted", "policy_id", id)
	return nil
}

// Get returns a copy of the policy definition with the given ID.
func (s *Store) Get(id string) (*policy.Policy, bool) {
	c, ok := s.snapshot.Load().byID[id]
	if !ok {
		return nil, false
	}
	return c.Policy.Clone(), true
}

// List returns copies of all policy definitions in evaluation order.
func (s *Store) List() []*policy.Policy {
	snap := s.snapshot.Load()
	out := make([]*policy.Policy, 0, len(snap.policies))
	for _, c := range snap.policies {
		out = append(out, c.Policy.Clone())
	}
	return out
}

// ReplaceAll atomically swaps in a complete new policy set, compiling each
// policy first. This is the loader/hot-reload path; it bypasses authority
// checks because file-based policies are admitted by deployment, not by an
// API caller. If any policy fails to compile, the store is left unchanged.
func (s *Store) ReplaceAll(policies []*policy.Policy) error {
	compiled := make([]*policy.Compiled, 0, len(policies))
	seen := make(map[string]bool, len(policies))

	for _, p := range policies {
		if seen[p.ID] {
			return &ConflictError{ID: p.ID}
		}
		seen[p.ID] = true

		c, err := policy.Compile(p.Clone())
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.swap(compiled)

	s.logger.Info("policy set replaced", "policy_count", len(compiled))
	return nil
}

// compiledList copies the current snapshot's policy slice so the caller
// can build a successor without mutating shared state.
func (s *Store) compiledList(snap *Snapshot) []*policy.Compiled {
	out := make([]*policy.Compiled, 0, len(snap.policies)+1)
	out = append(out, snap.policies...)
	return out
}

// swap builds and installs a new snapshot. Caller must hold writeMu.
func (s *Store) swap(policies []*policy.Compiled) {
	s.generation++
	s.snapshot.Store(s.buildSnapshot(policies))
}

// buildSnapshot sorts, indexes, and versions the policy set.
func (s *Store) buildSnapshot(policies []*policy.Compiled) *Snapshot {
	// Deterministic evaluation order: authority descending, ID ascending.
	sort.SliceStable(policies, func(i, j int) bool {
		pi, pj := policies[i].Policy, policies[j].Policy
		if pi.AuthorityRequired != pj.AuthorityRequired {
			return pi.AuthorityRequired > pj.AuthorityRequired
		}
		return pi.ID < pj.ID
	})

	byID := make(map[string]*policy.Compiled, len(policies))
	hash := sha256.New()
	fmt.Fprintf(hash, "gen:%d;", s.generation)
	for _, c := range policies {
		byID[c.Policy.ID] = c
		fmt.Fprintf(hash, "%s;", c.Policy.ID)
	}

	return &Snapshot{
		Version:  fmt.Sprintf("%x", hash.Sum(nil))[:16],
		LoadTime: time.Now(),
		policies: policies,
		byID:     byID,
	}
}
