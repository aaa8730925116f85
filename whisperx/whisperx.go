package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"scribe/transcripts"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type (
	transcribeResult struct {
		Language string    `json:"language"`
		Segments []segment `json:"segments"`
	}

	segment struct {
		Text  string           `json:"text"`
		Start *decimal.Decimal `json:"start"`
		End   *decimal.Decimal `json:"end"`
	}
)

// Recognizer runs the whisperx command line tool and reads back the JSON
// result it writes.
type Recognizer struct {
	Binary string
	Model  string
	Device string

	log zerolog.Logger
}

var _ transcripts.Recognizer = Recognizer{}

// segmentLine is the verbose per-segment line whisperx prints while it works.
var segmentLine = regexp.MustCompile(`^\[\d+:\d+(?::\d+)?\.\d+ --> \d+:\d+(?::\d+)?\.\d+\]\s*(.*)$`)

const stderrTailLines = 20

func New(binary, model, device string, log zerolog.Logger) Recognizer {
	if binary == "" {
		binary = "whisperx"
	}
	return Recognizer{
		Binary: binary,
		Model:  model,
		Device: device,
		log:    log.With().Str("component", "whisperx").Logger(),
	}
}

// Ready reports whether the binary can be found and a local model path, if
// one is configured, exists.
func (w Recognizer) Ready() error {
	if _, err := exec.LookPath(w.Binary); err != nil {
		return fmt.Errorf("looking up %s: %w", w.Binary, transcripts.ErrRecognizerNotReady)
	}
	if strings.ContainsRune(w.Model, os.PathSeparator) {
		if _, err := os.Stat(w.Model); err != nil {
			return fmt.Errorf("model %s: %w", w.Model, transcripts.ErrModelNotLoaded)
		}
	}
	return nil
}

func (w Recognizer) Transcribe(ctx context.Context, audioPath string, language string, onProgress func(string)) ([]transcripts.Segment, error) {
	if err := w.Ready(); err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}

	outDir, err := os.MkdirTemp("", "whisperx-")
	if err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.Binary, w.args(audioPath, language, outDir)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transcribing with whisperx: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting whisperx: %v: %w", err, transcripts.ErrRecognizerNotReady)
	}

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			m := scanner.Text()
			w.log.Debug().Str("stream", "stderr").Msg(m)
			tail = append(tail, m)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
		}
	}()
	go func() {
		defer wg.Done()
		w.streamProgress(stdout, onProgress)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transcribing with whisperx: %w", ctx.Err())
		}
		return nil, fmt.Errorf("transcribing with whisperx: %v: %w", err, classifyFailure(strings.Join(tail, "\n")))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	resultFile, err := os.Open(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("opening whisperx transcribe result: %v: %w", err, transcripts.ErrRecognitionFailed)
	}
	defer resultFile.Close()

	return decodeResult(resultFile)
}

func (w Recognizer) args(audioPath, language, outDir string) []string {
	args := []string{
		audioPath,
		"--output_format", "json",
		"--output_dir", outDir,
		"--print_progress", "True",
	}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}
	if w.Device != "" && w.Device != "auto" {
		args = append(args, "--device", w.Device)
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	return args
}

// streamProgress forwards the text recognized so far each time whisperx
// prints another segment.
func (w Recognizer) streamProgress(r io.Reader, onProgress func(string)) {
	var seen []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := scanner.Text()
		text, ok := progressText(m)
		if !ok {
			w.log.Debug().Str("stream", "stdout").Msg(m)
			continue
		}
		seen = append(seen, text)
		if onProgress != nil {
			onProgress(strings.Join(seen, "\n"))
		}
	}
}

func progressText(line string) (string, bool) {
	m := segmentLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	text := transcripts.Normalize(m[1])
	return text, text != ""
}

func classifyFailure(stderr string) error {
	s := strings.ToLower(stderr)
	if strings.Contains(s, "model") &&
		(strings.Contains(s, "not found") || strings.Contains(s, "failed to load") ||
			strings.Contains(s, "unable to load") || strings.Contains(s, "no such file")) {
		return transcripts.ErrModelNotLoaded
	}
	return transcripts.ErrRecognitionFailed
}

func decodeResult(r io.Reader) ([]transcripts.Segment, error) {
	var tr transcribeResult
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding whisperx json result: %v: %w", err, transcripts.ErrRecognitionFailed)
	}

	res := make([]transcripts.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		res = append(res, transcripts.Segment{
			Text:  s.Text,
			Start: seconds(s.Start),
			End:   seconds(s.End),
		})
	}
	return res, nil
}

func seconds(d *decimal.Decimal) *float64 {
	if d == nil || d.IsNegative() {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
