package transcripts

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

type (
	// Recognizer turns a normalized waveform into ordered segments.
	// onProgress receives partial text as it becomes available and may be nil.
	Recognizer interface {
		Transcribe(ctx context.Context, audioPath string, language string, onProgress func(string)) ([]Segment, error)
	}

	// Transliterator rewrites recognized text into another character set.
	Transliterator interface {
		Convert(text string) (string, error)
	}

	// Converter produces a mono 16kHz WAV file from any supported source.
	Converter interface {
		Convert(ctx context.Context, inputPath string) (string, error)
	}
)

var supportedExtensions = []string{"mp4", "mov", "mkv", "wav", "mp3", "m4a"}

// Languages maps the selectable UI languages to their tags.
var Languages = map[string]string{
	"繁體中文":     "zh-Hant",
	"简体中文":     "zh-Hans",
	"English":  "en",
	"Japanese": "ja",
	"Korean":   "ko",
	"French":   "fr",
	"German":   "de",
	"廣東話(粵語)":  "yue",
}

func IsSupportedFile(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return slices.Contains(supportedExtensions, ext)
}

// RecognizerLanguage reduces a UI language tag to the code the recognizer
// expects, so zh-Hant and zh-Hans both become zh. Empty means auto-detect.
func RecognizerLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(tag)
	}
	base, _ := t.Base()
	return base.String()
}

// WantsTraditional reports whether tag asks for Chinese in Traditional
// characters. The recognizer is only told "zh" and often answers in
// Simplified ones.
func WantsTraditional(tag string) bool {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return false
	}
	base, _ := t.Base()
	script, conf := t.Script()
	return base.String() == "zh" && conf != language.No && script.String() == "Hant"
}
