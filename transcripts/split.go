package transcripts

import (
	"strings"
)

const (
	terminalMarks  = "。？！.?!"
	secondaryMarks = ",，、；;：:"

	minSegmentChars     = 2
	mixedSplitChars     = 100
	secondarySplitChars = 120
	secondaryChunkChars = 80
	sentenceMaxChars    = 150
	rhythmSplitChars    = 100
	rhythmEdgeChars     = 20
	groupShortChars     = 30
	groupMaxChars       = 120
)

// Render derives the displayed transcript for cfg. segments and plainText
// must describe the same recognition run.
func Render(cfg Config, segments []Segment, plainText string) string {
	switch cfg.Mode {
	case Semantic:
		return SplitByPunctuation(plainText)
	case Mixed:
		return SplitMixed(segments)
	default:
		return SplitBySegments(segments, cfg.IncludeTimestamps)
	}
}

// SplitBySegments keeps the recognizer's boundaries, one segment per line.
// Timestamped lines are never merged, since that would lose their timing.
func SplitBySegments(segments []Segment, includeTimestamps bool) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		text := Normalize(s.Text)
		if charCount(text) < minSegmentChars {
			continue
		}
		if includeTimestamps {
			text = FormatSpan(s.Start, s.End) + " " + text
		}
		lines = append(lines, text)
	}
	if !includeTimestamps {
		lines = OptimizeLengths(lines)
	}
	return strings.Join(lines, "\n")
}

// SplitMixed keeps segment boundaries but re-splits any segment too long to
// read as one line.
func SplitMixed(segments []Segment) string {
	var lines []string
	for _, s := range segments {
		text := Normalize(s.Text)
		if charCount(text) < minSegmentChars {
			continue
		}
		if charCount(text) > mixedSplitChars {
			lines = append(lines, punctuationLines(text)...)
			continue
		}
		lines = append(lines, text)
	}
	return strings.Join(OptimizeLengths(lines), "\n")
}

// SplitByPunctuation re-derives line boundaries from sentence punctuation,
// falling back to marker words when the text carries none.
func SplitByPunctuation(text string) string {
	return strings.Join(punctuationLines(text), "\n")
}

func punctuationLines(text string) []string {
	var lines []string
	if strings.ContainsAny(text, terminalMarks) {
		lines = splitLines(breakAfterTerminals(text))
		lines = splitLongLines(lines, secondarySplitChars)
	} else {
		lines = semanticLines(text)
	}
	return cleanLines(splitLongLines(lines, sentenceMaxChars))
}

// breakAfterTerminals ends a line after every run of terminal marks unless
// a newline already follows.
func breakAfterTerminals(text string) string {
	rs := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + len(rs)/8)
	for i, r := range rs {
		b.WriteRune(r)
		if !strings.ContainsRune(terminalMarks, r) {
			continue
		}
		if i+1 < len(rs) && (rs[i+1] == '\n' || strings.ContainsRune(terminalMarks, rs[i+1])) {
			continue
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// splitLongLines breaks every line longer than limit on secondary marks.
func splitLongLines(lines []string, limit int) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if charCount(line) > limit {
			out = append(out, splitOnSecondary(line)...)
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitOnSecondary cuts line into clauses at secondary marks, each mark
// staying at the end of its clause, and packs clauses into pieces that are
// emitted as soon as they exceed secondaryChunkChars.
func splitOnSecondary(line string) []string {
	var (
		pieces []string
		chunk  strings.Builder
		n      int
	)
	for _, r := range line {
		chunk.WriteRune(r)
		n++
		if strings.ContainsRune(secondaryMarks, r) && n > secondaryChunkChars {
			pieces = appendTrimmed(pieces, chunk.String())
			chunk.Reset()
			n = 0
		}
	}
	return appendTrimmed(pieces, chunk.String())
}

// semanticLines splits unpunctuated text in a fixed order: strong markers,
// medium markers, rhythm, then grouping of short fragments.
func semanticLines(text string) []string {
	text = breakBeforeMarkers(text, strongMarkers)
	text = breakBeforeMarkers(text, mediumMarkers)

	var lines []string
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if charCount(line) > rhythmSplitChars {
			lines = append(lines, splitAtBreakWord(line)...)
			continue
		}
		lines = append(lines, line)
	}
	return groupShortLines(lines)
}

// breakBeforeMarkers starts a new line at each marker occurrence that is
// not already at the start of a line.
func breakBeforeMarkers(text string, markers []marker) string {
	rs := []rune(text)
	var b strings.Builder
	b.Grow(len(text) + len(rs)/4)
	atLineStart := true
	for i := 0; i < len(rs); {
		if n := longestMatch(markers, rs, i); n > 0 {
			if !atLineStart {
				b.WriteByte('\n')
			}
			b.WriteString(string(rs[i : i+n]))
			i += n
			atLineStart = false
			continue
		}
		b.WriteRune(rs[i])
		atLineStart = rs[i] == '\n'
		i++
	}
	return b.String()
}

// splitAtBreakWord splits line in two at the break word occurrence nearest
// its midpoint that leaves at least rhythmEdgeChars on each side. Lines
// with no such occurrence are returned unchanged.
func splitAtBreakWord(line string) []string {
	rs := []rune(line)
	mid := len(rs) / 2
	best, bestDist := -1, len(rs)
	for _, w := range breakWords {
		for pos := indexRunes(rs, w, 0); pos >= 0; pos = indexRunes(rs, w, pos+1) {
			if pos < rhythmEdgeChars || len(rs)-pos < rhythmEdgeChars {
				continue
			}
			if d := abs(pos - mid); d < bestDist {
				best, bestDist = pos, d
			}
		}
	}
	if best < 0 {
		return []string{line}
	}
	var out []string
	out = appendTrimmed(out, string(rs[:best]))
	return appendTrimmed(out, string(rs[best:]))
}

// groupShortLines appends short fragments to the previous line. A fragment
// opening with a strong marker is a deliberate boundary and stays separate.
func groupShortLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if len(out) > 0 && charCount(line) < groupShortChars && !startsWithStrongMarker(line) {
			last := len(out) - 1
			if joined := out[last] + " " + line; charCount(joined) <= groupMaxChars {
				out[last] = joined
				continue
			}
		}
		out = append(out, line)
	}
	return out
}

func splitLines(text string) []string {
	return strings.Split(text, "\n")
}

// cleanLines trims every line and drops the blank ones.
func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = appendTrimmed(out, line)
	}
	return out
}

func appendTrimmed(lines []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		return append(lines, s)
	}
	return lines
}

func indexRunes(s, sub []rune, from int) int {
	for i := from; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
