package beads

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// MessageKind tags the sum type a comment line classifies into.
type MessageKind int

const (
	// KindUnknown is any comment line that does not match a recognized
	// prefix; it carries no semantics for the orchestrator.
	KindUnknown MessageKind = iota
	KindPhase
	KindInvestigationPath
	KindAgentMetadata
)

var (
	phasePattern             = regexp.MustCompile(`(?i)^Phase:\s*(\w+)`)
	investigationPathPattern = regexp.MustCompile(`^investigation_path:\s*(.+)$`)
	agentMetadataPattern     = regexp.MustCompile(`^agent_metadata:\s*(\{.*\})\s*$`)
)

// AgentMetadata is the structured payload of an `agent_metadata:` comment.
type AgentMetadata struct {
	AgentID    string `json:"agent_id"`
	WindowID   string `json:"window_id"`
	Skill      string `json:"skill,omitempty"`
	ProjectDir string `json:"project_dir,omitempty"`
}

// CommentMessage is the tagged union produced by classifying a single
// comment line: exactly one of Phase, InvestigationPath, or Metadata is
// meaningful, selected by Kind. This replaces four separate regex passes
// over the comment slice (one per derived query) with a single
// left-to-right classifying scan, per spec.md §9's "dynamic comment
// parsing" redesign note.
type CommentMessage struct {
	Kind              MessageKind
	Phase             string
	InvestigationPath string
	Metadata          *AgentMetadata
	Raw               string
}

// classify parses a single comment's text into a CommentMessage. Only the
// first matching prefix is honored; comment bodies are otherwise opaque
// to the orchestrator.
func classify(text string) CommentMessage {
	if m := phasePattern.FindStringSubmatch(text); m != nil {
		return CommentMessage{Kind: KindPhase, Phase: m[1], Raw: text}
	}
	if m := investigationPathPattern.FindStringSubmatch(text); m != nil {
		return CommentMessage{Kind: KindInvestigationPath, InvestigationPath: strings.TrimSpace(m[1]), Raw: text}
	}
	if m := agentMetadataPattern.FindStringSubmatch(text); m != nil {
		var meta AgentMetadata
		if err := json.Unmarshal([]byte(m[1]), &meta); err == nil {
			return CommentMessage{Kind: KindAgentMetadata, Metadata: &meta, Raw: text}
		}
	}
	return CommentMessage{Kind: KindUnknown, Raw: text}
}

// ScanResult holds the "latest of each kind" accumulator produced by a
// single left-to-right scan over a chronologically ordered comment
// stream.
type ScanResult struct {
	LatestPhase             string
	HasPhase                bool
	LatestInvestigationPath string
	HasInvestigationPath    bool
	LatestMetadata          *AgentMetadata
}

// scan performs the single classifying left-to-right pass: later comments
// overwrite earlier ones of the same kind, so the result always reflects
// the chronologically last occurrence, matching the tracker's authoritative
// ordering (spec.md §9 "comment stream ordering").
func scan(comments []Comment) ScanResult {
	var res ScanResult
	for _, c := range comments {
		msg := classify(c.Text)
		switch msg.Kind {
		case KindPhase:
			res.LatestPhase = msg.Phase
			res.HasPhase = true
		case KindInvestigationPath:
			res.LatestInvestigationPath = msg.InvestigationPath
			res.HasInvestigationPath = true
		case KindAgentMetadata:
			res.LatestMetadata = msg.Metadata
		}
	}
	return res
}

// LatestPhase scans an issue's comments and returns the last reported
// Phase token, or ("", false) if none was ever reported.
func (g *Gateway) LatestPhase(ctx context.Context, issueID string) (string, bool, error) {
	comments, err := g.ListComments(ctx, issueID)
	if err != nil {
		return "", false, err
	}
	res := scan(comments)
	return res.LatestPhase, res.HasPhase, nil
}

// HasPhaseComplete reports whether the latest reported Phase is
// "Complete" (case-insensitive).
func (g *Gateway) HasPhaseComplete(ctx context.Context, issueID string) (bool, error) {
	phase, ok, err := g.LatestPhase(ctx, issueID)
	if err != nil {
		return false, err
	}
	return ok && strings.EqualFold(phase, "Complete"), nil
}

// LatestInvestigationPath scans an issue's comments for the last reported
// investigation_path.
func (g *Gateway) LatestInvestigationPath(ctx context.Context, issueID string) (string, bool, error) {
	comments, err := g.ListComments(ctx, issueID)
	if err != nil {
		return "", false, err
	}
	res := scan(comments)
	return res.LatestInvestigationPath, res.HasInvestigationPath, nil
}

// LatestAgentMetadata scans an issue's comments for the last successfully
// parsed agent_metadata object.
func (g *Gateway) LatestAgentMetadata(ctx context.Context, issueID string) (*AgentMetadata, error) {
	comments, err := g.ListComments(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return scan(comments).LatestMetadata, nil
}
