package transcripts

import (
	"fmt"
	"strings"
)

type (
	// Segment is one timestamped span of recognized speech. A nil offset
	// means the recognizer did not report timing for that edge.
	Segment struct {
		Text  string   `json:"text"`
		Start *float64 `json:"start,omitempty"`
		End   *float64 `json:"end,omitempty"`
	}

	Speech struct {
		ID            int64  `json:"id"`
		Name          string `json:"name"`
		Blake3Hash    string `json:"blake3_hash"`
		IsTranscribed bool   `json:"is_transcribed"`
	}

	// Config is the display configuration the UI layer mutates.
	Config struct {
		Mode              SplittingMode `json:"mode"`
		IncludeTimestamps bool          `json:"timestamps"`
	}

	SplittingMode int
)

const (
	SegmentBased SplittingMode = iota
	Semantic
	Mixed
)

var modeNames = map[SplittingMode]string{
	SegmentBased: "segment",
	Semantic:     "semantic",
	Mixed:        "mixed",
}

// Modes lists every splitting mode in display order.
func Modes() []SplittingMode {
	return []SplittingMode{SegmentBased, Semantic, Mixed}
}

// NewSegment returns a segment with both offsets set.
func NewSegment(text string, start, end float64) Segment {
	return Segment{Text: text, Start: &start, End: &end}
}

func (m SplittingMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("SplittingMode(%d)", int(m))
}

func (m SplittingMode) Description() string {
	switch m {
	case SegmentBased:
		return "Split on the recognizer's own pauses; optional timestamps"
	case Semantic:
		return "Split on punctuation, or on marker words when there is none"
	case Mixed:
		return "Segment pauses, with long segments split semantically"
	default:
		return ""
	}
}

func (m SplittingMode) MarshalText() ([]byte, error) {
	name, ok := modeNames[m]
	if !ok {
		return nil, fmt.Errorf("marshal splitting mode: unknown mode %d", int(m))
	}
	return []byte(name), nil
}

func (m *SplittingMode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts the names produced by String plus a few aliases.
func ParseMode(s string) (SplittingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "segment", "segments", "segment-based", "segmentbased":
		return SegmentBased, nil
	case "semantic", "punctuation":
		return Semantic, nil
	case "mixed", "hybrid":
		return Mixed, nil
	default:
		return SegmentBased, fmt.Errorf("parse splitting mode %q: %w", s, ErrUnknownMode)
	}
}
