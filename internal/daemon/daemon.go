// Package daemon runs the autonomous polling loop: it polls the tracker
// across every registered project, filters ready issues by label,
// ranks them via internal/focus, and spawns agents up to a configured
// concurrency cap (spec.md §5 "A daemon mode runs one lightweight loop
// that polls the tracker, prioritizes, and spawns"). Grounded directly
// on original_source/src/orch/work_daemon.py's run_daemon_cycle; the
// bounded-parallelism spawn step is new (the Python version spawns
// synchronously, one at a time) and uses a buffered-channel semaphore in
// the teacher's internal/controller concurrency style.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/dconlin/orch/internal/focus"
	"github.com/dconlin/orch/internal/orchlog"
	"github.com/dconlin/orch/internal/registry"
)

// Config mirrors work_daemon.py's DaemonConfig dataclass.
type Config struct {
	PollInterval        time.Duration
	MaxConcurrentAgents int
	RequiredLabel       string
	DryRun              bool
	UseFocus            bool
	Focus               focus.Config // consulted only when UseFocus is true
}

// DefaultConfig mirrors the Python dataclass defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:        60 * time.Second,
		MaxConcurrentAgents: 3,
		RequiredLabel:       "triage:ready",
		UseFocus:            true,
		Focus:               focus.Default(),
	}
}

// ReadyIssue is a candidate for autonomous spawning.
type ReadyIssue struct {
	ID        string
	Title     string
	IssueType string
	Labels    []string
	Project   string
}

// CycleStats summarizes one polling cycle (work_daemon.py's stats dict).
type CycleStats struct {
	ProjectsPolled int
	IssuesFound    int
	AgentsSpawned  int
	SkippedAtLimit int
	Failures       int
}

// ProjectLister returns every project the daemon should poll.
type ProjectLister func(ctx context.Context) ([]string, error)

// IssueLister returns ready issues for one project, already filtered to
// requiredLabel when non-empty.
type IssueLister func(ctx context.Context, project, requiredLabel string) ([]ReadyIssue, error)

// Spawner spawns one agent for issue; it is the daemon's only mutating
// seam, typically wiring spawnplan+tmuxsession+registry.Register end to
// end.
type Spawner func(ctx context.Context, issue ReadyIssue) error

// Daemon drives one polling cycle at a time.
type Daemon struct {
	Store    *registry.Store
	Projects ProjectLister
	Issues   IssueLister
	Spawn    Spawner
	Log      orchlog.Logger
	Config   Config
}

// New returns a Daemon wired to the given collaborators.
func New(store *registry.Store, projects ProjectLister, issues IssueLister, spawn Spawner, log orchlog.Logger, cfg Config) *Daemon {
	if log == nil {
		log = orchlog.NewNop()
	}
	return &Daemon{Store: store, Projects: projects, Issues: issues, Spawn: spawn, Log: log, Config: cfg}
}

// Run polls indefinitely at Config.PollInterval until ctx is canceled,
// running one RunCycle per tick.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.Config.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunCycle(ctx); err != nil {
			d.Log.Warn("daemon: cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes a single poll-prioritize-spawn pass (spec.md §5;
// grounded on work_daemon.py's run_daemon_cycle).
func (d *Daemon) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	projects, err := d.Projects(ctx)
	if err != nil {
		return stats, err
	}
	stats.ProjectsPolled = len(projects)
	if len(projects) == 0 {
		return stats, nil
	}

	var allIssues []ReadyIssue
	for _, p := range projects {
		issues, err := d.Issues(ctx, p, d.Config.RequiredLabel)
		if err != nil {
			d.Log.Warn("daemon: failed listing ready issues", "project", p, "error", err)
			continue
		}
		allIssues = append(allIssues, issues...)
	}
	stats.IssuesFound = len(allIssues)
	if len(allIssues) == 0 {
		return stats, nil
	}

	if d.Config.UseFocus {
		allIssues = focus.Prioritize(allIssues, func(i ReadyIssue) focus.Candidate {
			return focus.Candidate{Project: i.Project, IssueType: i.IssueType, Labels: i.Labels}
		}, d.Config.Focus)
	}

	active, err := d.Store.ListActive()
	if err != nil {
		return stats, err
	}
	slots := d.Config.MaxConcurrentAgents - len(active)
	if slots < 0 {
		slots = 0
	}

	toSpawn := allIssues
	if len(toSpawn) > slots {
		stats.SkippedAtLimit = len(toSpawn) - slots
		toSpawn = toSpawn[:slots]
	}

	if d.Config.DryRun || d.Spawn == nil {
		stats.AgentsSpawned = len(toSpawn)
		return stats, nil
	}

	spawned, failed := d.spawnConcurrently(ctx, toSpawn)
	stats.AgentsSpawned = spawned
	stats.Failures = failed
	return stats, nil
}

// spawnConcurrently runs Spawn for each issue, bounded by
// MaxConcurrentAgents via a buffered-channel semaphore.
func (d *Daemon) spawnConcurrently(ctx context.Context, issues []ReadyIssue) (spawned, failed int) {
	limit := d.Config.MaxConcurrentAgents
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, issue := range issues {
		issue := issue
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			err := d.Spawn(ctx, issue)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.Log.Warn("daemon: spawn failed", "issue", issue.ID, "error", err)
				failed++
				return
			}
			spawned++
		}()
	}
	wg.Wait()
	return spawned, failed
}
