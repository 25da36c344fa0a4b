package diff

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiff_SimpleAddition(t *testing.T) {
	oldContent := "line1\nline2\nline3\n"
	newContent := "line1\nline2\nline2.5\nline3\n"

	engine := NewEngine(3)
	diff := engine.ComputeDiff("old.py", "new.py", oldContent, newContent)

	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}

	hasAddition := false
	for _, line := range diff.Hunks[0].Lines {
		if line.Type == LineAdded && line.Content == "line2.5" {
			hasAddition = true
			assert.Equal(t, 3, line.LineNum)
		}
	}
	if !hasAddition {
		t.Error("Expected to find added line 'line2.5'")
	}
}

func TestComputeDiff_SimpleDeletion(t *testing.T) {
	engine := NewEngine(3)
	diff := engine.ComputeDiff("old.py", "new.py", "line1\nline2\nline3\nline4\n", "line1\nline2\nline4\n")

	require.Len(t, diff.Hunks, 1)
	hasRemoval := false
	for _, line := range diff.Hunks[0].Lines {
		if line.Type == LineRemoved && line.Content == "line3" {
			hasRemoval = true
		}
	}
	assert.True(t, hasRemoval, "Expected to find removed line 'line3'")
}

func TestComputeDiff_NoChanges(t *testing.T) {
	content := "line1\nline2\nline3\n"
	diff := ComputeDiff("file.py", "file.py", content, content)

	assert.Empty(t, diff.Hunks)
	assert.False(t, diff.Changed())
	assert.Equal(t, "", Unified(diff))
}

func numbered(n int, changed map[int]string) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		if s, ok := changed[i]; ok {
			sb.WriteString(s)
		} else {
			fmt.Fprintf(&sb, "line%d", i)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestComputeDiff_MultipleHunks(t *testing.T) {
	oldContent := numbered(20, nil)
	newContent := numbered(20, map[int]string{3: "CHANGED3", 17: "CHANGED17"})

	diff := NewEngine(3).ComputeDiff("old.py", "new.py", oldContent, newContent)
	require.Len(t, diff.Hunks, 2)

	assert.Equal(t, 1, diff.Hunks[0].OldStart)
	assert.Equal(t, 6, diff.Hunks[0].OldCount)
	assert.Equal(t, 14, diff.Hunks[1].OldStart)
	assert.Equal(t, 7, diff.Hunks[1].OldCount)
}

func TestComputeDiff_MergesCloseChanges(t *testing.T) {
	oldContent := numbered(20, nil)
	newContent := numbered(20, map[int]string{5: "A", 11: "B"})

	diff := NewEngine(3).ComputeDiff("old.py", "new.py", oldContent, newContent)
	require.Len(t, diff.Hunks, 1)
	assert.Equal(t, 2, diff.Hunks[0].OldStart)
	assert.Equal(t, 13, diff.Hunks[0].OldCount)
	assert.Equal(t, 13, diff.Hunks[0].NewCount)
}

func TestComputeDiff_HunkCounts(t *testing.T) {
	diff := NewEngine(3).ComputeDiff("old.py", "new.py", "line1\nline2\nline3\n", "line1\nNEW\nline3\n")
	require.Len(t, diff.Hunks, 1)

	hunk := diff.Hunks[0]
	oldCount, newCount := 0, 0
	for _, line := range hunk.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			oldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			newCount++
		}
	}
	assert.Equal(t, 3, hunk.OldCount)
	assert.Equal(t, oldCount, hunk.OldCount)
	assert.Equal(t, newCount, hunk.NewCount)
}

func TestComputeDiff_LargeFile(t *testing.T) {
	var oldLines, newLines []string
	for i := 0; i < 1000; i++ {
		oldLines = append(oldLines, fmt.Sprintf("line %d", i))
		newLines = append(newLines, fmt.Sprintf("line %d", i))
	}
	newLines[500] = "CHANGED LINE"

	diff := DefaultEngine.ComputeDiff("old.py", "new.py", strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	require.Len(t, diff.Hunks, 1)
	assert.Equal(t, 2*DefaultContext+2, len(diff.Hunks[0].Lines))
}

func TestUnified(t *testing.T) {
	diff := NewEngine(1).ComputeDiff("a.py", "a.py", "a = 1\nbbb = 2\nz\n", "a   = 1\nbbb = 2\nz\n")

	want := "--- a.py\n" +
		"+++ a.py\n" +
		"@@ -1,2 +1,2 @@\n" +
		"-a = 1\n" +
		"+a   = 1\n" +
		" bbb = 2\n"
	assert.Equal(t, want, Unified(diff))
}

func TestUnified_NoNewlineAtEOF(t *testing.T) {
	diff := NewEngine(0).ComputeDiff("a.py", "a.py", "x = 1", "x = 2")

	want := "--- a.py\n" +
		"+++ a.py\n" +
		"@@ -1 +1 @@\n" +
		"-x = 1\n" +
		`\ No newline at end of file` + "\n" +
		"+x = 2\n" +
		`\ No newline at end of file` + "\n"
	assert.Equal(t, want, Unified(diff))
}

func TestUnified_Insertion(t *testing.T) {
	diff := NewEngine(0).ComputeDiff("a.py", "a.py", "a\nb\n", "a\nx\nb\n")
	assert.Contains(t, Unified(diff), "@@ -1,0 +2 @@\n+x\n")
}

func TestFormatRange(t *testing.T) {
	assert.Equal(t, "3", formatRange(3, 1))
	assert.Equal(t, "2,0", formatRange(3, 0))
	assert.Equal(t, "3,4", formatRange(3, 4))
}

func TestColorize(t *testing.T) {
	text := "--- a.py\n+++ a.py\n@@ -1 +1 @@\n-a\t= 1\n+a   = 1\n"

	var plain bytes.Buffer
	assert.Equal(t, text, NewColorizer(&plain, false).Colorize(text))

	var forced bytes.Buffer
	colored := NewColorizer(&forced, true).Colorize(text)
	assert.Contains(t, colored, "\x1b[")
	assert.Contains(t, colored, "a\t= 1")
	assert.Equal(t, strings.Count(text, "\n"), strings.Count(colored, "\n"))
	assert.Equal(t, "", NewColorizer(&forced, true).Colorize(""))
}

func BenchmarkComputeDiff_Large(b *testing.B) {
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, fmt.Sprintf("line content here %d", i))
	}
	oldContent := strings.Join(lines, "\n")
	lines[500] = "CHANGED"
	newContent := strings.Join(lines, "\n")

	engine := NewEngine(DefaultContext)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ComputeDiff("old.py", "new.py", oldContent, newContent)
	}
}
