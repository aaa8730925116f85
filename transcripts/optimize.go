package transcripts

import "strings"

const (
	shortLineChars = 20
	mergeMaxChars  = 120
	longLineChars  = 150
)

// OptimizeLengths evens out line lengths in one order-preserving pass.
// A line under shortLineChars is appended to the previous output line when
// the joined line stays within mergeMaxChars; a line over longLineChars is
// re-split and its pieces are spliced in without being merged again.
func OptimizeLengths(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		n := charCount(line)
		switch {
		case n == 0:
			continue
		case n > longLineChars:
			out = append(out, punctuationLines(line)...)
		case n < shortLineChars && len(out) > 0:
			last := len(out) - 1
			if joined := out[last] + " " + line; charCount(joined) <= mergeMaxChars {
				out[last] = joined
				continue
			}
			out = append(out, line)
		default:
			out = append(out, line)
		}
	}
	return out
}
