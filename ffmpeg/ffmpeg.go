// Package ffmpeg normalizes dropped media into the waveform the recognizer
// expects: mono, 16kHz, WAV.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"scribe/transcripts"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

const (
	SampleRate     = 16000
	Channels       = 1
	exportedPrefix = "whisper_audio_"
)

// Converter shells out to ffmpeg. Outputs are written to WorkDir, or the
// system temp dir when it is empty.
type Converter struct {
	Binary  string
	WorkDir string

	now func() time.Time
	log zerolog.Logger
}

var _ transcripts.Converter = Converter{}

func New(binary, workDir string, log zerolog.Logger) Converter {
	if binary == "" {
		binary = "ffmpeg"
	}
	return Converter{
		Binary:  binary,
		WorkDir: workDir,
		now:     time.Now,
		log:     log.With().Str("component", "ffmpeg").Logger(),
	}
}

func (c Converter) dir() string {
	if c.WorkDir == "" {
		return os.TempDir()
	}
	return c.WorkDir
}

// Convert writes whisper_audio_<unix ms>.wav and returns its path.
func (c Converter) Convert(ctx context.Context, inputPath string) (string, error) {
	if _, err := os.Stat(inputPath); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("converting %s: %w", inputPath, transcripts.ErrSourceNotFound)
	}
	bin, err := exec.LookPath(c.Binary)
	if err != nil {
		return "", fmt.Errorf("converting: %s: %w", c.Binary, transcripts.ErrConverterNotFound)
	}
	if err := os.MkdirAll(c.dir(), 0o755); err != nil {
		return "", fmt.Errorf("converting: work dir: %w", err)
	}

	now := c.now
	if now == nil {
		now = time.Now
	}
	out := filepath.Join(c.dir(), fmt.Sprintf("%s%d.wav", exportedPrefix, now().UnixMilli()))

	// ffmpeg -y -i input -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, bin,
		"-y", "-i", inputPath,
		"-ac", fmt.Sprint(Channels), "-ar", fmt.Sprint(SampleRate),
		"-f", "wav",
		out,
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("converting: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("converting: starting ffmpeg: %v: %w", err, transcripts.ErrConverterNotFound)
	}
	var last string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		last = scanner.Text()
		c.log.Debug().Msg(last)
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("converting: %w", ctx.Err())
		}
		return "", fmt.Errorf("converting: ffmpeg: %v: %s: %w", err, strings.TrimSpace(last), transcripts.ErrConversionFailed)
	}

	if err := Check(out); err != nil {
		return "", fmt.Errorf("converting: %w", err)
	}
	return out, nil
}

// Check verifies that path is a valid mono 16kHz WAV file.
func Check(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("checking output: %v: %w", err, transcripts.ErrConversionFailed)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return fmt.Errorf("checking output: %s is not a wav file: %w", path, transcripts.ErrConversionFailed)
	}
	if d.NumChans != Channels || d.SampleRate != SampleRate {
		return fmt.Errorf("checking output: got %d channels at %dHz: %w", d.NumChans, d.SampleRate, transcripts.ErrConversionFailed)
	}
	return nil
}

// RemoveExported deletes every converted file this package wrote to dir and
// returns how many were removed.
func RemoveExported(dir string) (int, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("removing exported audio: %w", err)
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, exportedPrefix) || !strings.EqualFold(filepath.Ext(name), ".wav") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return n, fmt.Errorf("removing exported audio: %w", err)
		}
		n++
	}
	return n, nil
}
