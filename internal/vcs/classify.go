package vcs

import "strings"

// FailureClass partitions push failures by the correct reaction.
type FailureClass int

const (
	// ClassTransient failures (network drops, timeouts, 5xx responses) are
	// retried with backoff. Unrecognized output lands here too: retrying an
	// unknown failure wastes a few seconds, while misreading it as permanent
	// strands local work.
	ClassTransient FailureClass = iota

	// ClassStale failures mean the remote moved under us. The reaction is
	// fetch, re-merge, and push again, not a blind retry.
	ClassStale

	// ClassPermanent failures (auth, permissions, protected branches) will
	// not succeed on retry. The reaction is to stop and surface the error.
	ClassPermanent
)

func (c FailureClass) String() string {
	switch c {
	case ClassStale:
		return "stale"
	case ClassPermanent:
		return "permanent"
	default:
		return "transient"
	}
}

// classifyRule matches a failure class by output substrings. All listed
// substrings must be present.
type classifyRule struct {
	class FailureClass
	subs  []string
}

// Permanent rules run before stale rules: some servers wrap a policy
// rejection in the same "rejected" phrasing as a non-fast-forward, and a
// policy rejection retried as stale would loop forever.
var classifyRules = []classifyRule{
	{ClassPermanent, []string{"protected branch"}},
	{ClassPermanent, []string{"permission denied"}},
	{ClassPermanent, []string{"authentication failed"}},
	{ClassPermanent, []string{"could not read username"}},
	{ClassPermanent, []string{"403"}},
	{ClassPermanent, []string{"repository not found"}},

	{ClassStale, []string{"non-fast-forward"}},
	{ClassStale, []string{"fetch first"}},
	{ClassStale, []string{"[rejected]", "behind"}},
	{ClassStale, []string{"stale info"}},

	{ClassTransient, []string{"could not resolve host"}},
	{ClassTransient, []string{"connection reset"}},
	{ClassTransient, []string{"connection refused"}},
	{ClassTransient, []string{"connection timed out"}},
	{ClassTransient, []string{"operation timed out"}},
	{ClassTransient, []string{"early eof"}},
	{ClassTransient, []string{"the remote end hung up"}},
	{ClassTransient, []string{"500"}},
	{ClassTransient, []string{"502"}},
	{ClassTransient, []string{"503"}},
	{ClassTransient, []string{"504"}},
}

// Classify maps raw push output to a failure class. Pure string analysis, no
// subprocess state, so the table is testable in isolation. Output matching no
// rule classifies as transient.
func Classify(output string) FailureClass {
	lower := strings.ToLower(output)
	for _, rule := range classifyRules {
		matched := true
		for _, sub := range rule.subs {
			if !strings.Contains(lower, sub) {
				matched = false
				break
			}
		}
		if matched {
			return rule.class
		}
	}
	return ClassTransient
}
