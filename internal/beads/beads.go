// Package beads is a typed adapter over the external `bd` issue-tracker
// CLI. It is a Go rendering of
// original_source/src/orch/beads_integration.py: a thin exec.Command
// wrapper around `bd`, JSON-decoded responses, and the same error
// taxonomy, with the four comment-parsing helpers collapsed into a single
// classifying scan (see comment.go) per spec.md §9's redesign note.
package beads

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dconlin/orch/internal/orcherr"
)

// Status values the tracker reports for an Issue.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Issue mirrors the tracker's record shape (spec.md §3 "Issue (mirrored
// from tracker)").
type Issue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    int      `json:"priority"`
	Labels      []string `json:"labels"`
	Notes       string   `json:"notes"`
}

// Comment is one chronological entry in an issue's comment stream.
type Comment struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Gateway is a typed adapter over the `bd` CLI. A zero-value Gateway is
// unusable; construct with New.
type Gateway struct {
	BinPath string
	DBPath  string
	Timeout time.Duration
}

// New returns a Gateway invoking binPath (conventionally "bd"), optionally
// scoped to an alternative database path for cross-project operation.
func New(binPath, dbPath string, timeout time.Duration) *Gateway {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{BinPath: binPath, DBPath: dbPath, Timeout: timeout}
}

// WithDB returns a copy of the Gateway scoped to an alternative database
// path, letting the orchestrator operate across project boundaries
// without mutating the shared Gateway.
func (g *Gateway) WithDB(dbPath string) *Gateway {
	cp := *g
	cp.DBPath = dbPath
	return &cp
}

func (g *Gateway) buildArgs(args ...string) []string {
	full := make([]string, 0, len(args)+2)
	if g.DBPath != "" {
		full = append(full, "--db", g.DBPath)
	}
	full = append(full, args...)
	return full
}

func (g *Gateway) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.BinPath, g.buildArgs(args...)...)
	out, err := cmd.Output()
	if err != nil {
		if isBinNotFound(err) {
			return nil, orcherr.New(orcherr.KindTrackerError, "TrackerUnavailable",
				fmt.Sprintf("%s CLI not found in PATH", g.BinPath))
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, orcherr.Wrap(orcherr.KindTrackerError, "TrackerTransient", ctx.Err())
		}
		return nil, orcherr.Wrap(orcherr.KindTrackerError, "TrackerTransient", err)
	}
	return out, nil
}

func isBinNotFound(err error) bool {
	return strings.Contains(err.Error(), "executable file not found")
}

// GetIssue fetches an issue by id.
func (g *Gateway) GetIssue(ctx context.Context, id string) (*Issue, error) {
	out, err := g.run(ctx, "show", id, "--json")
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := json.Unmarshal(out, &issues); err != nil || len(issues) == 0 {
		return nil, orcherr.New(orcherr.KindTrackerError, "IssueNotFound",
			fmt.Sprintf("beads issue %q not found", id)).WithContext("issue_id", id)
	}
	return &issues[0], nil
}

// UpdateStatus sets an issue's status.
func (g *Gateway) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := g.run(ctx, "update", id, "--status", status)
	return err
}

// UpdateNotes sets an issue's notes field.
func (g *Gateway) UpdateNotes(ctx context.Context, id, notes string) error {
	_, err := g.run(ctx, "update", id, "--notes", notes)
	return err
}

// AppendComment appends a comment to an issue.
func (g *Gateway) AppendComment(ctx context.Context, id, text string) error {
	_, err := g.run(ctx, "comment", id, text)
	return err
}

// Close closes an issue with a canonical reason.
func (g *Gateway) Close(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "Resolved via orch complete"
	}
	_, err := g.run(ctx, "close", id, "--reason", reason)
	return err
}

// ListComments returns an issue's comments in chronological order.
func (g *Gateway) ListComments(ctx context.Context, id string) ([]Comment, error) {
	out, err := g.run(ctx, "comments", id, "--json")
	if err != nil {
		return nil, err
	}
	var comments []Comment
	if err := json.Unmarshal(out, &comments); err != nil {
		return nil, orcherr.Wrap(orcherr.KindTrackerError, "TrackerTransient", err)
	}
	return comments, nil
}

// ListReady returns issues ready to be worked, optionally constrained to a
// label.
func (g *Gateway) ListReady(ctx context.Context, label string) ([]Issue, error) {
	args := []string{"list", "--status=" + StatusOpen, "--json"}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, orcherr.Wrap(orcherr.KindTrackerError, "TrackerTransient", err)
	}
	if label == "" {
		return issues, nil
	}
	var filtered []Issue
	for _, iss := range issues {
		for _, l := range iss.Labels {
			if l == label {
				filtered = append(filtered, iss)
				break
			}
		}
	}
	return filtered, nil
}
