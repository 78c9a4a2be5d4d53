package vcs

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   FailureClass
	}{
		{"protected branch", "remote: error: GH006: Protected branch update failed", ClassPermanent},
		{"permission denied", "Permission denied (publickey).", ClassPermanent},
		{"auth failed", "fatal: Authentication failed for 'https://example.com/repo.git'", ClassPermanent},
		{"username prompt", "fatal: could not read Username for 'https://example.com'", ClassPermanent},
		{"http 403", "error: The requested URL returned error: 403", ClassPermanent},
		{"repo gone", "remote: Repository not found.", ClassPermanent},

		{"non fast forward", "! [rejected] spool-sync -> spool-sync (non-fast-forward)", ClassStale},
		{"fetch first", "! [rejected] spool-sync -> spool-sync (fetch first)", ClassStale},
		{"rejected behind", "! [rejected] updates were rejected because the tip of your current branch is behind", ClassStale},
		{"stale info", "! [rejected] spool-sync -> spool-sync (stale info)", ClassStale},

		{"dns", "fatal: unable to access 'https://example.com/': Could not resolve host: example.com", ClassTransient},
		{"reset", "fatal: the remote end hung up unexpectedly: Connection reset by peer", ClassTransient},
		{"refused", "fatal: unable to access: Connection refused", ClassTransient},
		{"timeout", "fatal: unable to access: Connection timed out", ClassTransient},
		{"early eof", "fatal: early EOF", ClassTransient},
		{"hung up", "fatal: The remote end hung up unexpectedly", ClassTransient},
		{"http 500", "error: RPC failed; HTTP 500", ClassTransient},
		{"http 502", "error: RPC failed; HTTP 502", ClassTransient},
		{"http 503", "error: RPC failed; HTTP 503", ClassTransient},
		{"http 504", "error: RPC failed; HTTP 504", ClassTransient},

		// Unknown output must default to transient: suggesting a retry is
		// safer than discarding work as permanently rejected.
		{"unknown", "something nobody has seen before", ClassTransient},
		{"empty", "", ClassTransient},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.output); got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.output, got, tc.want)
			}
		})
	}
}

// A policy rejection phrased with "rejected" wording must classify permanent,
// not stale, or the retry loop would spin on it.
func TestClassifyPermanentBeforeStale(t *testing.T) {
	out := "! [rejected] spool-sync (protected branch hook declined, your branch is behind)"
	if got := Classify(out); got != ClassPermanent {
		t.Errorf("Classify() = %v, want ClassPermanent", got)
	}
}

func TestFailureClassString(t *testing.T) {
	for class, want := range map[FailureClass]string{
		ClassTransient: "transient",
		ClassStale:     "stale",
		ClassPermanent: "permanent",
	} {
		if got := class.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(class), got, want)
		}
	}
}
