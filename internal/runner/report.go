package runner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mode selects what happens to a file that needs reformatting.
type Mode int

const (
	// ModeWrite rewrites files in place.
	ModeWrite Mode = iota
	// ModeCheck only reports which files would change.
	ModeCheck
	// ModeDiff prints a unified diff instead of writing.
	ModeDiff
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeCheck:
		return "check"
	case ModeDiff:
		return "diff"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Exit codes.
const (
	ExitOK      = 0
	ExitChanged = 1
	ExitError   = 123
)

// Failure is a file that could not be formatted.
type Failure struct {
	Path string
	Err  error
}

// Report collects per-file outcomes of a run. It is safe for concurrent use.
type Report struct {
	Mode      Mode
	Changed   []string
	Unchanged []string
	Failed    []Failure

	mu sync.Mutex
}

func (r *Report) changed(path string) {
	r.mu.Lock()
	r.Changed = append(r.Changed, path)
	r.mu.Unlock()
}

func (r *Report) unchanged(path string) {
	r.mu.Lock()
	r.Unchanged = append(r.Unchanged, path)
	r.mu.Unlock()
}

func (r *Report) failed(path string, err error) {
	r.mu.Lock()
	r.Failed = append(r.Failed, Failure{Path: path, Err: err})
	r.mu.Unlock()
}

func (r *Report) sort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Strings(r.Changed)
	sort.Strings(r.Unchanged)
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].Path < r.Failed[j].Path })
}

// ExitCode maps the report to a process exit status.
func (r *Report) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case len(r.Failed) > 0:
		return ExitError
	case r.Mode != ModeWrite && len(r.Changed) > 0:
		return ExitChanged
	default:
		return ExitOK
	}
}

// Summary renders the closing lines printed after a run.
func (r *Report) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	dry := r.Mode != ModeWrite
	var parts []string
	if n := len(r.Changed); n > 0 {
		verb := "reformatted"
		if dry {
			verb = "would be reformatted"
		}
		parts = append(parts, fmt.Sprintf("%s %s", files(n), verb))
	}
	if n := len(r.Unchanged); n > 0 {
		verb := "left unchanged"
		if dry {
			verb = "would be left unchanged"
		}
		parts = append(parts, fmt.Sprintf("%s %s", files(n), verb))
	}
	if n := len(r.Failed); n > 0 {
		verb := "failed to reformat"
		if dry {
			verb = "would fail to reformat"
		}
		parts = append(parts, fmt.Sprintf("%s %s", files(n), verb))
	}

	head := "All done! ✨ 🍰 ✨"
	if len(r.Failed) > 0 || (dry && len(r.Changed) > 0) {
		head = "Oh no! 💥 💔 💥"
	}
	if len(parts) == 0 {
		return head
	}
	return head + "\n" + strings.Join(parts, ", ") + "."
}

func files(n int) string {
	if n == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", n)
}
