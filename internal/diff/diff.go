// Package diff computes line diffs between the input and the formatted
// output of a file, using the sergi/go-diff library, and renders them in
// unified format.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff
type Line struct {
	LineNum int
	Content string
	Type    LineType
	// NoNewline marks the last line of a side that does not end in "\n".
	NoNewline bool
}

// Hunk represents a group of changes. Starts are 1-based.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff represents changes to a single file
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Changed reports whether the diff has any hunk.
func (fd *FileDiff) Changed() bool {
	return fd != nil && len(fd.Hunks) > 0
}

// DefaultContext is the number of context lines black prints around a change.
const DefaultContext = 5

// Engine computes line diffs.
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine creates a diff engine printing contextLines lines around each
// change. A negative value selects DefaultContext.
func NewEngine(contextLines int) *Engine {
	dmp := diffmatchpatch.New()
	// Formatter output can be large; accuracy matters more than speed here.
	dmp.DiffTimeout = 0
	if contextLines < 0 {
		contextLines = DefaultContext
	}
	return &Engine{dmp: dmp, context: contextLines}
}

// DefaultEngine is shared by callers that need no special context size.
var DefaultEngine = NewEngine(DefaultContext)

// ComputeDiff creates a FileDiff from old and new content strings.
func (e *Engine) ComputeDiff(oldPath, newPath, oldContent, newContent string) *FileDiff {
	fd := &FileDiff{OldPath: oldPath, NewPath: newPath}
	if oldContent == newContent {
		return fd
	}

	// Line-level reduction so that hunks never split a line.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	fd.Hunks = groupIntoHunks(toOperations(diffs), e.context)
	return fd
}

// ComputeDiff is a convenience function using the default engine
func ComputeDiff(oldPath, newPath, oldContent, newContent string) *FileDiff {
	return DefaultEngine.ComputeDiff(oldPath, newPath, oldContent, newContent)
}

// operation is a single line of either side. oldLine and newLine are the
// 0-based positions on each side before the line is consumed.
type operation struct {
	typ       LineType
	oldLine   int
	newLine   int
	content   string
	noNewline bool
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		lines := strings.SplitAfter(d.Text, "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, raw := range lines {
			op := operation{
				oldLine:   oldLine,
				newLine:   newLine,
				content:   strings.TrimSuffix(raw, "\n"),
				noNewline: !strings.HasSuffix(raw, "\n"),
			}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				op.typ = LineContext
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				op.typ = LineRemoved
				oldLine++
			case diffmatchpatch.DiffInsert:
				op.typ = LineAdded
				newLine++
			}
			ops = append(ops, op)
		}
	}
	return ops
}

// groupIntoHunks groups operations into hunks with contextLines of context.
// Changes closer than twice the context share a hunk.
func groupIntoHunks(ops []operation, contextLines int) []Hunk {
	var hunks []Hunk

	first, last := -1, -1
	flush := func() {
		if first < 0 {
			return
		}
		lo := first - contextLines
		if lo < 0 {
			lo = 0
		}
		hi := last + contextLines
		if hi > len(ops)-1 {
			hi = len(ops) - 1
		}
		hunks = append(hunks, buildHunk(ops[lo:hi+1]))
		first, last = -1, -1
	}

	for i, op := range ops {
		if op.typ == LineContext {
			continue
		}
		if first >= 0 && i-last > 2*contextLines {
			flush()
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	flush()

	return hunks
}

func buildHunk(ops []operation) Hunk {
	h := Hunk{
		OldStart: ops[0].oldLine + 1,
		NewStart: ops[0].newLine + 1,
		Lines:    make([]Line, 0, len(ops)),
	}
	for _, op := range ops {
		lineNum := op.oldLine + 1
		if op.typ == LineAdded {
			lineNum = op.newLine + 1
		}
		h.Lines = append(h.Lines, Line{
			LineNum:   lineNum,
			Content:   op.content,
			Type:      op.typ,
			NoNewline: op.noNewline,
		})
		if op.typ != LineAdded {
			h.OldCount++
		}
		if op.typ != LineRemoved {
			h.NewCount++
		}
	}
	return h
}
