// Package diff compares two texts line by line.
package diff

import (
	"fmt"
	"strings"
)

// maxCells bounds the LCS table. Larger inputs diff their changed middle
// as one replacement.
const maxCells = 4_000_000

type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) prefix() string {
	switch t {
	case Addition:
		return "+"
	case Deletion:
		return "-"
	default:
		return " "
	}
}

// Line numbers are 1-based. An addition carries as OldNum the old line it
// follows (0 before the first), a deletion likewise as NewNum.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// Text renders the line with its unified diff prefix.
func (l Line) Text() string {
	return l.Type.prefix() + l.Content
}

// Hunk is a run of changes with its surrounding context. Starts are
// 1-based.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}

type Stats struct {
	Additions int
	Deletions int
}

type Result struct {
	Hunks []Hunk
	Stats Stats
}

func (r *Result) Empty() bool {
	return len(r.Hunks) == 0
}

// Engine diffs with a fixed number of context lines.
type Engine struct {
	contextLines int
}

func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{contextLines: contextLines}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// Diff returns the changes turning oldText into newText.
func (e *Engine) Diff(oldText, newText string) *Result {
	script := edits(splitLines(oldText), splitLines(newText))

	result := &Result{Hunks: e.group(script)}
	for _, l := range script {
		switch l.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	return result
}

// edits produces the full edit script, context lines included.
func edits(a, b []string) []Line {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	var script []Line
	for i := 0; i < prefix; i++ {
		script = append(script, Line{Type: Context, Content: a[i], OldNum: i + 1, NewNum: i + 1})
	}
	script = append(script, middle(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix], prefix, prefix)...)
	for k := suffix; k > 0; k-- {
		i, j := len(a)-k, len(b)-k
		script = append(script, Line{Type: Context, Content: a[i], OldNum: i + 1, NewNum: j + 1})
	}
	return script
}

func middle(a, b []string, oldOff, newOff int) []Line {
	var script []Line
	if len(a)*len(b) > maxCells {
		for i, s := range a {
			script = append(script, Line{Type: Deletion, Content: s, OldNum: oldOff + i + 1, NewNum: newOff})
		}
		for j, s := range b {
			script = append(script, Line{Type: Addition, Content: s, OldNum: oldOff + len(a), NewNum: newOff + j + 1})
		}
		return script
	}

	// lcs[i][j] is the LCS length of a[i:] and b[j:]
	lcs := make([][]int32, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int32, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			script = append(script, Line{Type: Context, Content: a[i], OldNum: oldOff + i + 1, NewNum: newOff + j + 1})
			i++
			j++
		case j < len(b) && (i == len(a) || lcs[i][j+1] > lcs[i+1][j]):
			script = append(script, Line{Type: Addition, Content: b[j], OldNum: oldOff + i, NewNum: newOff + j + 1})
			j++
		default:
			script = append(script, Line{Type: Deletion, Content: a[i], OldNum: oldOff + i + 1, NewNum: newOff + j})
			i++
		}
	}
	return script
}

// group cuts the script into hunks, merging changes closer than twice
// the context.
func (e *Engine) group(script []Line) []Hunk {
	var hunks []Hunk
	n := len(script)

	for start := 0; start < n; {
		for start < n && script[start].Type == Context {
			start++
		}
		if start == n {
			break
		}

		end := start
		for {
			for end < n && script[end].Type != Context {
				end++
			}
			gap := end
			for gap < n && script[gap].Type == Context {
				gap++
			}
			if gap < n && gap-end <= 2*e.contextLines {
				end = gap
				continue
			}
			break
		}

		from := max(0, start-e.contextLines)
		to := min(n, end+e.contextLines)
		hunks = append(hunks, newHunk(script[from:to]))
		start = to
	}
	return hunks
}

func newHunk(lines []Line) Hunk {
	h := Hunk{Lines: append([]Line(nil), lines...)}
	for _, l := range lines {
		if l.Type != Addition {
			if h.OldStart == 0 {
				h.OldStart = l.OldNum
			}
			h.OldLines++
		}
		if l.Type != Deletion {
			if h.NewStart == 0 {
				h.NewStart = l.NewNum
			}
			h.NewLines++
		}
	}
	// an empty side names the line the change follows
	if h.OldLines == 0 {
		h.OldStart = lines[0].OldNum
	}
	if h.NewLines == 0 {
		h.NewStart = lines[0].NewNum
	}
	return h
}

// Format renders r as a unified diff.
func (r *Result) Format(oldName, newName string) string {
	if r.Empty() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range r.Hunks {
		b.WriteString(h.Header())
		b.WriteByte('\n')
		for _, l := range h.Lines {
			b.WriteString(l.Text())
			b.WriteByte('\n')
		}
	}
	return b.String()
}
