package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// GH talks to GitHub issues through the gh CLI, which carries authentication
// and repository resolution itself.
type GH struct {
	// Dir is the working directory for gh invocations, so repository
	// resolution follows the repo being synced.
	Dir string
}

// NewGH returns a GH tracker operating in dir.
func NewGH(dir string) *GH {
	return &GH{Dir: dir}
}

// issueNumber extracts the issue number from a record's tracker link, e.g.
// "gh-42" -> "42".
func issueNumber(ref string) (string, error) {
	num, ok := strings.CutPrefix(ref, "gh-")
	if !ok || num == "" {
		return "", fmt.Errorf("tracker ref %q is not a gh issue link", ref)
	}
	return num, nil
}

func (g *GH) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("gh %s failed: %w\n%s", strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

type ghIssue struct {
	State       string `json:"state"`
	StateReason string `json:"stateReason"`
	Labels      []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// GetState fetches the issue's state, state reason, and labels.
func (g *GH) GetState(ctx context.Context, ref string) (State, error) {
	num, err := issueNumber(ref)
	if err != nil {
		return State{}, err
	}
	out, err := g.run(ctx, "issue", "view", num, "--json", "state,stateReason,labels")
	if err != nil {
		return State{}, err
	}
	var issue ghIssue
	if err := json.Unmarshal(out, &issue); err != nil {
		return State{}, fmt.Errorf("parse gh issue %s: %w", num, err)
	}
	st := State{
		State:  strings.ToLower(issue.State),
		Reason: strings.ToLower(issue.StateReason),
	}
	for _, l := range issue.Labels {
		st.Labels = append(st.Labels, l.Name)
	}
	return st, nil
}

// SetState closes or reopens the issue. Closing with no recognized reason
// defaults to completed.
func (g *GH) SetState(ctx context.Context, ref, state, reason string) error {
	num, err := issueNumber(ref)
	if err != nil {
		return err
	}
	switch state {
	case "closed":
		ghReason := "completed"
		if reason == "not planned" || reason == "not_planned" {
			ghReason = "not planned"
		}
		_, err = g.run(ctx, "issue", "close", num, "--reason", ghReason)
		if err != nil && strings.Contains(err.Error(), "already closed") {
			return nil
		}
		return err
	case "open":
		_, err = g.run(ctx, "issue", "reopen", num)
		if err != nil && strings.Contains(err.Error(), "already open") {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown tracker state %q", state)
	}
}

// AddLabel adds a label to the issue.
func (g *GH) AddLabel(ctx context.Context, ref, label string) error {
	num, err := issueNumber(ref)
	if err != nil {
		return err
	}
	_, err = g.run(ctx, "issue", "edit", num, "--add-label", label)
	return err
}

// RemoveLabel removes a label from the issue. A label the issue never had is
// not an error.
func (g *GH) RemoveLabel(ctx context.Context, ref, label string) error {
	num, err := issueNumber(ref)
	if err != nil {
		return err
	}
	_, err = g.run(ctx, "issue", "edit", num, "--remove-label", label)
	return err
}

// EnsureLabel creates the label in the repository if it does not exist.
func (g *GH) EnsureLabel(ctx context.Context, label string) error {
	_, err := g.run(ctx, "label", "create", label)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}
