// Package registry is the durable, lock-protected store of Agent records
// (spec.md §4.3). It is grounded on
// hugo-lorenzo-mato-quorum-ai/internal/adapters/state's JSONStateManager:
// a single JSON document guarded by an advisory file lock, written
// atomically via renameio. Unlike that teacher package, which is a
// single-writer save, the registry here implements a genuine three-way
// merge-on-save resolver (disk snapshot ⊕ caller's mutated view ⊕
// max-updated_at resolver) because the reconciler and reaper compute their
// mutations from a window/process enumeration taken without holding the
// file lock (spec.md §5 forbids holding the registry lock across a slow
// external call). This merge logic has no direct teacher analog — see
// DESIGN.md.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dconlin/orch/internal/orcherr"
)

// lockAcquireTimeout bounds how long a writer waits for the advisory file
// lock before failing with RegistryConflict.
const lockAcquireTimeout = 10 * time.Second

// Status is an Agent's lifecycle state (spec.md §3, invariant I2).
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusFailed    Status = "failed"
)

// WindowHandle pairs a multiplexer session name with its stable opaque
// window identifier (invariant I5: never reused for a different agent).
type WindowHandle struct {
	Session  string `json:"window"`
	WindowID string `json:"window_id"`
}

// Completion is the structured record the reaper populates at the end of
// the shutdown cascade.
type Completion struct {
	WorkspaceCleaned bool   `json:"workspace_cleaned,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// Agent is the unit of supervision (spec.md §3).
type Agent struct {
	ID              string        `json:"id"`
	Task            string        `json:"task"`
	Project         string        `json:"project"`
	ProjectDir      string        `json:"project_dir"`
	Workspace       string        `json:"workspace"`
	Skill           string        `json:"skill,omitempty"`
	PrimaryArtifact string        `json:"primary_artifact,omitempty"`
	Window          string        `json:"window"`
	WindowID        string        `json:"window_id"`
	Status          Status        `json:"status"`
	SpawnedAt       time.Time     `json:"spawned_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	TerminatedAt    *time.Time    `json:"terminated_at,omitempty"`
	BeadsID         string        `json:"beads_id,omitempty"`
	BeadsIDs        []string      `json:"beads_ids,omitempty"`
	BeadsDBPath     string        `json:"beads_db_path,omitempty"`
	Completion      *Completion   `json:"completion,omitempty"`
}

// PrimaryIssue returns the first linked issue id, the only one whose phase
// gates completion (invariant I4), and whether one is linked at all.
func (a *Agent) PrimaryIssue() (string, bool) {
	if a.BeadsID != "" {
		return a.BeadsID, true
	}
	if len(a.BeadsIDs) > 0 {
		return a.BeadsIDs[0], true
	}
	return "", false
}

// document is the on-disk shape: a single JSON object containing the agent
// list (spec.md §6 registry schema).
type document struct {
	Agents []Agent `json:"agents"`
}

// Store is a handle on the on-disk registry. A zero-value Store is not
// usable; construct with Open.
type Store struct {
	Path string
}

// Open returns a Store rooted at path. Opening does not touch the
// filesystem; the file is created lazily on first write and treated as an
// empty registry if absent on read (spec.md §4.3 "loss of the file is
// treated as a fresh start").
func Open(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) lock() *flock.Flock {
	return flock.New(s.Path + ".lock")
}

// load reads the current on-disk document. A missing file is an empty
// registry, not an error. A JSON parse failure (e.g. another writer
// mid-rename) returns an empty list rather than propagating, per spec.md
// §4.3's "callers must tolerate transient parse errors" contract --
// callers that need certainty should retry with backoff.
func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, nil
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(s.Path, data, 0o644)
}

// withLock acquires the advisory file lock for the duration of fn,
// guaranteeing release on every return path including panics, per
// spec.md §9's "scoped acquisition... with guaranteed release on all exit
// paths" redesign note.
func (s *Store) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockAcquireTimeout)
	defer cancel()

	fl := s.lock()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return orcherr.Wrap(orcherr.KindRegistryConflict, "lock acquisition failed", err)
	}
	if !locked {
		return orcherr.New(orcherr.KindRegistryConflict, "lock_timeout", "timed out acquiring registry lock")
	}
	defer fl.Unlock()
	return fn()
}

// Register appends a new Agent in status=active. It fails with
// DuplicateAgent if an agent with the same id already exists in active
// state (spec.md §4.3 register contract).
func (s *Store) Register(agent Agent) error {
	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		for _, existing := range doc.Agents {
			if existing.ID == agent.ID && existing.Status == StatusActive {
				return orcherr.New(orcherr.KindRegistryConflict, "DuplicateAgent",
					fmt.Sprintf("agent %q is already active", agent.ID)).WithContext("agent_id", agent.ID)
			}
		}
		now := time.Now().UTC()
		agent.SpawnedAt = now
		agent.UpdatedAt = now
		if agent.Status == "" {
			agent.Status = StatusActive
		}
		doc.Agents = append(doc.Agents, agent)
		return s.save(doc)
	})
}

// Find returns the first record whose id equals key; failing that, the
// first record whose primary linked issue equals key. Exact id matches
// always win (spec.md §4.3 find contract, tested by §8's property for
// find()).
func (s *Store) Find(key string) (*Agent, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Agents {
		if doc.Agents[i].ID == key {
			cp := doc.Agents[i]
			return &cp, nil
		}
	}
	for i := range doc.Agents {
		if primary, ok := doc.Agents[i].PrimaryIssue(); ok && primary == key {
			cp := doc.Agents[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// ListActive returns all agents with status=active in insertion order.
func (s *Store) ListActive() ([]Agent, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var active []Agent
	for _, a := range doc.Agents {
		if a.Status == StatusActive {
			active = append(active, a)
		}
	}
	return active, nil
}

// ListAll returns every agent record, completed and failed included
// (invariant I6: they are filtered by callers, never deleted).
func (s *Store) ListAll() ([]Agent, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Agents, nil
}

// UpdateStatus transitions an agent's status, bumping updated_at and
// setting completed_at/terminated_at as appropriate. The whole
// read-decide-write cycle runs under the lock, so no merge step is needed
// here: this is a single-agent, lock-scoped operation (spec.md §4.3).
func (s *Store) UpdateStatus(id string, status Status) error {
	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		idx := indexOf(doc.Agents, id)
		if idx < 0 {
			return orcherr.New(orcherr.KindRegistryConflict, "AgentNotFound",
				fmt.Sprintf("agent %q not found", id)).WithContext("agent_id", id)
		}
		now := time.Now().UTC()
		doc.Agents[idx].Status = status
		doc.Agents[idx].UpdatedAt = now
		switch status {
		case StatusCompleted:
			doc.Agents[idx].CompletedAt = &now
		case StatusAbandoned, StatusFailed:
			doc.Agents[idx].TerminatedAt = &now
		}
		return s.save(doc)
	})
}

// ApplyMutations merges a caller-computed batch of mutated Agent records
// back into the registry. It is the three-way merge-on-save primitive:
// disk snapshot ⊕ mutated view ⊕ resolver(max updated_at). Used by the
// reconciler and reaper, whose decisions are computed from a window or
// process enumeration taken without holding the registry lock, so the
// disk may have moved on (e.g. new registrations) by the time the
// decision is ready to write (spec.md §4.3 merge rule).
func (s *Store) ApplyMutations(mutated []Agent) error {
	if len(mutated) == 0 {
		return nil
	}
	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		byID := make(map[string]int, len(doc.Agents))
		for i, a := range doc.Agents {
			byID[a.ID] = i
		}
		for _, m := range mutated {
			idx, exists := byID[m.ID]
			if !exists {
				doc.Agents = append(doc.Agents, m)
				byID[m.ID] = len(doc.Agents) - 1
				continue
			}
			// Max-updated_at wins: a reconciler transition must never be
			// silently reverted by a concurrent writer whose copy predates it.
			if !m.UpdatedAt.Before(doc.Agents[idx].UpdatedAt) {
				doc.Agents[idx] = m
			}
		}
		return s.save(doc)
	})
}

func indexOf(agents []Agent, id string) int {
	for i, a := range agents {
		if a.ID == id {
			return i
		}
	}
	return -1
}
