package gitutil

import "testing"

func TestChangedFiles(t *testing.T) {
	porcelain := " M internal/foo.go\n?? new_file.go\nR  old.go -> renamed.go\n"
	got := ChangedFiles(porcelain)
	want := []string{"internal/foo.go", "new_file.go", "renamed.go"}

	if len(got) != len(want) {
		t.Fatalf("ChangedFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ChangedFiles()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIsExempt(t *testing.T) {
	exclusions := []string{".beads", "vendor/"}

	cases := []struct {
		file string
		want bool
	}{
		{".beads", true},
		{".beads/issues.db", true},
		{"vendor/modules.txt", true},
		{"internal/registry.go", false},
		{".beadsnot", false},
	}

	for _, c := range cases {
		if got := isExempt(c.file, exclusions); got != c.want {
			t.Errorf("isExempt(%q) = %v, want %v", c.file, got, c.want)
		}
	}
}

func TestIsBenignUpstreamError(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"fatal: no upstream configured for branch 'main'", true},
		{"fatal: unknown revision or path not in the working tree", true},
		{"fatal: your current branch 'main' does not have any commits yet", true},
		{"fatal: not a git repository", false},
	}

	for _, c := range cases {
		err := &fakeErr{c.msg}
		if got := isBenignUpstreamError(err); got != c.want {
			t.Errorf("isBenignUpstreamError(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

type fakeErr struct{ msg string }

func (f *fakeErr) Error() string { return f.msg }
