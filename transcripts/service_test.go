package transcripts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	fakeConverter struct {
		err error
	}

	fakeRecognizer struct {
		mu       sync.Mutex
		calls    int
		language string
		segments []Segment
		err      error
	}
)

func (c fakeConverter) Convert(_ context.Context, inputPath string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return inputPath + ".wav", nil
}

func (r *fakeRecognizer) Transcribe(_ context.Context, _ string, language string, onProgress func(string)) ([]Segment, error) {
	r.mu.Lock()
	r.calls++
	r.language = language
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	for _, s := range r.segments {
		onProgress(s.Text)
	}
	return r.segments, nil
}

// gatedRecognizer blocks each audio file until its gate is closed and
// records whether the run's context was cancelled by then.
type gatedRecognizer struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	ctxErrs map[string]error
	started chan string
}

func newGatedRecognizer(paths ...string) *gatedRecognizer {
	r := &gatedRecognizer{
		gates:   make(map[string]chan struct{}),
		ctxErrs: make(map[string]error),
		started: make(chan string, len(paths)),
	}
	for _, p := range paths {
		r.gates[p] = make(chan struct{})
	}
	return r
}

func (r *gatedRecognizer) Transcribe(ctx context.Context, audioPath string, _ string, _ func(string)) ([]Segment, error) {
	r.started <- audioPath
	<-r.gates[audioPath]

	r.mu.Lock()
	r.ctxErrs[audioPath] = ctx.Err()
	r.mu.Unlock()

	name := strings.TrimSuffix(filepath.Base(audioPath), ".mp3.wav")
	return []Segment{NewSegment("transcript of "+name, 0, 1)}, nil
}

func (r *gatedRecognizer) ctxErr(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctxErrs[path]
}

type replacer struct{ *strings.Replacer }

func (r replacer) Convert(text string) (string, error) {
	return r.Replace(text), nil
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestServiceTranscribe(t *testing.T) {
	sess := newTestSession(t, Config{})
	rec := &fakeRecognizer{segments: helloWorld()}
	svc := NewService(sess, fakeConverter{}, rec, nil, zerolog.Nop())

	run, err := svc.StartTranscribe(context.Background(), writeSource(t, "talk.mp4", "video"), "zh-Hant")
	require.NoError(t, err)
	svc.Wait()

	assert.NotEmpty(t, run.ID)
	assert.NotEmpty(t, run.Blake3Hash)
	assert.Equal(t, "zh", run.Language)
	assert.False(t, run.Cached)
	assert.Equal(t, "zh", rec.language)

	snap := snapshot(t, sess)
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, "Hello world", snap.Transcript)
}

func TestServiceRejectsBadSources(t *testing.T) {
	sess := newTestSession(t, Config{})
	svc := NewService(sess, fakeConverter{}, &fakeRecognizer{}, nil, zerolog.Nop())

	_, err := svc.StartTranscribe(context.Background(), writeSource(t, "notes.txt", "hi"), "en")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = svc.StartTranscribe(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"), "en")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	assert.Equal(t, Idle, snapshot(t, sess).State)
}

func TestServiceFailuresLeaveCacheEmpty(t *testing.T) {
	tests := []struct {
		name string
		conv fakeConverter
		rec  *fakeRecognizer
		want error
	}{
		{"conversion", fakeConverter{err: fmt.Errorf("ffmpeg: %w", ErrConversionFailed)}, &fakeRecognizer{segments: helloWorld()}, ErrConversionFailed},
		{"recognizer", fakeConverter{}, &fakeRecognizer{err: ErrRecognizerNotReady}, ErrRecognizerNotReady},
		{"model", fakeConverter{}, &fakeRecognizer{err: ErrModelNotLoaded}, ErrModelNotLoaded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newTestSession(t, Config{})
			require.NoError(t, sess.Complete("", helloWorld()))

			svc := NewService(sess, tt.conv, tt.rec, nil, zerolog.Nop())
			_, err := svc.StartTranscribe(context.Background(), writeSource(t, "talk.wav", "audio"), "en")
			require.NoError(t, err)
			svc.Wait()

			snap := snapshot(t, sess)
			assert.Equal(t, Failed, snap.State)
			assert.Equal(t, "", snap.Transcript)
			assert.True(t, errors.Is(sess.Err(), tt.want))
		})
	}
}

func TestServiceServesRepeatsFromHistory(t *testing.T) {
	sess := newTestSession(t, Config{})
	rec := &fakeRecognizer{segments: helloWorld()}
	svc := NewService(sess, fakeConverter{}, rec, newTestRepo(t), zerolog.Nop())
	src := writeSource(t, "talk.m4a", "same audio")

	first, err := svc.StartTranscribe(context.Background(), src, "en")
	require.NoError(t, err)
	svc.Wait()
	require.False(t, first.Cached)

	require.NoError(t, sess.Clear())

	second, err := svc.StartTranscribe(context.Background(), src, "en")
	require.NoError(t, err)
	svc.Wait()

	assert.True(t, second.Cached)
	assert.Equal(t, first.Blake3Hash, second.Blake3Hash)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, rec.count())

	changed, err := sess.SetConfig(Config{IncludeTimestamps: true})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "[00:00 - 00:02] Hello\n[00:02 - 00:04] world", snapshot(t, sess).Transcript)
}

func TestServiceLateRunDoesNotOverwriteNewerSource(t *testing.T) {
	first := writeSource(t, "first.mp3", "first audio")
	second := writeSource(t, "second.mp3", "second audio")
	rec := newGatedRecognizer(first+".wav", second+".wav")

	sess := newTestSession(t, Config{})
	svc := NewService(sess, fakeConverter{}, rec, nil, zerolog.Nop())

	_, err := svc.StartTranscribe(context.Background(), first, "en")
	require.NoError(t, err)
	require.Equal(t, first+".wav", <-rec.started)

	run, err := svc.StartTranscribe(context.Background(), second, "en")
	require.NoError(t, err)
	require.Equal(t, second+".wav", <-rec.started)

	close(rec.gates[second+".wav"])
	require.Eventually(t, func() bool {
		snap, err := sess.Snapshot()
		return err == nil && snap.State == Ready
	}, 2*time.Second, 5*time.Millisecond)

	close(rec.gates[first+".wav"])
	svc.Wait()

	snap := snapshot(t, sess)
	assert.Equal(t, Ready, snap.State)
	assert.Equal(t, run.ID, snap.RunID)
	assert.Equal(t, second, snap.Source)
	assert.Equal(t, "transcript of second", snap.Transcript)
	assert.NoError(t, sess.Err())

	assert.ErrorIs(t, rec.ctxErr(first+".wav"), context.Canceled)
	assert.NoError(t, rec.ctxErr(second+".wav"))
}

func TestServiceConvertsToTraditional(t *testing.T) {
	sess := newTestSession(t, Config{})
	rec := &fakeRecognizer{segments: []Segment{NewSegment("我们说", 0, 1), NewSegment("好的", 1, 2)}}
	svc := NewService(sess, fakeConverter{}, rec, newTestRepo(t), zerolog.Nop()).
		WithTraditional(replacer{strings.NewReplacer("们", "們", "说", "說")})
	src := writeSource(t, "talk.mp4", "audio")

	run, err := svc.StartTranscribe(context.Background(), src, "zh-Hant")
	require.NoError(t, err)
	svc.Wait()
	assert.True(t, run.Traditional)
	assert.Equal(t, "zh", rec.language)
	assert.Equal(t, "我們說 好的", snapshot(t, sess).Transcript)

	run, err = svc.StartTranscribe(context.Background(), src, "zh-Hans")
	require.NoError(t, err)
	svc.Wait()
	assert.True(t, run.Cached)
	assert.False(t, run.Traditional)
	assert.Equal(t, "我们说 好的", snapshot(t, sess).Transcript)

	run, err = svc.StartTranscribe(context.Background(), src, "zh-Hant")
	require.NoError(t, err)
	assert.True(t, run.Cached)
	assert.Equal(t, "我們說 好的", snapshot(t, sess).Transcript)
}

func TestWantsTraditional(t *testing.T) {
	assert.True(t, WantsTraditional("zh-Hant"))
	assert.True(t, WantsTraditional(Languages["繁體中文"]))
	for _, tag := range []string{"zh-Hans", "zh", "en", "ja", "yue", "", "not a tag"} {
		assert.False(t, WantsTraditional(tag), tag)
	}
}

func TestRecognizerLanguage(t *testing.T) {
	tests := map[string]string{
		"zh-Hant": "zh",
		"zh-Hans": "zh",
		"en":      "en",
		"yue":     "yue",
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, RecognizerLanguage(in), in)
	}
	for _, tag := range Languages {
		assert.NotEmpty(t, RecognizerLanguage(tag), tag)
	}
}

func TestIsSupportedFile(t *testing.T) {
	assert.True(t, IsSupportedFile("/videos/Talk.MP4"))
	assert.True(t, IsSupportedFile("clip.m4a"))
	assert.False(t, IsSupportedFile("notes.txt"))
	assert.False(t, IsSupportedFile("noext"))
}
