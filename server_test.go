package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"scribe/transcripts"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	stubConverter  struct{}
	stubRecognizer struct {
		segments []transcripts.Segment
		err      error
	}
)

func (stubConverter) Convert(_ context.Context, inputPath string) (string, error) {
	return inputPath, nil
}

func (r stubRecognizer) Transcribe(_ context.Context, _ string, _ string, _ func(string)) ([]transcripts.Segment, error) {
	return r.segments, r.err
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	sess := transcripts.NewSession(transcripts.Config{}, zerolog.Nop())
	rec := stubRecognizer{segments: []transcripts.Segment{
		transcripts.NewSegment("Hello", 0, 2.5),
		transcripts.NewSegment("world", 2.5, 4.0),
	}}
	a := &app{
		sess:    sess,
		svc:     transcripts.NewService(sess, stubConverter{}, rec, nil, zerolog.Nop()),
		ready:   func() error { return nil },
		workDir: t.TempDir(),
		log:     zerolog.Nop(),
	}
	t.Cleanup(a.close)
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServerTranscribeAndReconfigure(t *testing.T) {
	a := newTestApp(t)
	h := newRouter(context.Background(), a)

	src := filepath.Join(t.TempDir(), "talk.mp3")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	rec := do(t, h, http.MethodPost, "/transcriptions", `{"path":"`+src+`","language":"en"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	run := decode[transcripts.Run](t, rec)
	assert.Equal(t, "en", run.Language)
	a.svc.Wait()

	rec = do(t, h, http.MethodGet, "/transcript", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", snap["state"])
	assert.Equal(t, "Hello world", snap["transcript"])

	rec = do(t, h, http.MethodPut, "/config", `{"timestamps":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string]any](t, rec)
	assert.Equal(t, true, out["changed"])
	assert.Equal(t, "[00:00 - 00:02] Hello\n[00:02 - 00:04] world", out["transcript"])

	rec = do(t, h, http.MethodPut, "/config", `{"mode":"sentences"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodDelete, "/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[map[string]any](t, rec)["transcript"])
}

func TestServerRejectsBadSources(t *testing.T) {
	h := newRouter(context.Background(), newTestApp(t))

	rec := do(t, h, http.MethodPost, "/transcriptions", `{"path":"/nowhere/talk.mp3"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/transcriptions", `{"path":"notes.txt"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = do(t, h, http.MethodPost, "/transcriptions", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerModesAndExported(t *testing.T) {
	a := newTestApp(t)
	h := newRouter(context.Background(), a)

	rec := do(t, h, http.MethodGet, "/modes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	modes := decode[[]modeInfo](t, rec)
	require.Len(t, modes, 3)
	assert.Equal(t, "segment", modes[0].Name)

	require.NoError(t, os.WriteFile(filepath.Join(a.workDir, "whisper_audio_1.wav"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(a.workDir, "keep.wav"), nil, 0o644))
	rec = do(t, h, http.MethodDelete, "/exported", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["removed"])
	assert.FileExists(t, filepath.Join(a.workDir, "keep.wav"))
}

func TestRunCLIAllModes(t *testing.T) {
	a := newTestApp(t)
	src := filepath.Join(t.TempDir(), "talk.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	var out strings.Builder
	cfg := config{Language: "en", AllModes: true}
	require.NoError(t, runCLI(context.Background(), a, cfg, []string{src}, &out))

	got := out.String()
	for _, m := range transcripts.Modes() {
		assert.Contains(t, got, "== "+m.String()+":")
	}
	assert.Contains(t, got, "Hello world")
}

func TestRunCLIServesHistoryWithoutRecognizer(t *testing.T) {
	ctx := context.Background()
	db, err := initDB(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := transcripts.NewSQLiteRepo(db)

	src := filepath.Join(t.TempDir(), "talk.m4a")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))

	build := func(rec transcripts.Recognizer) *app {
		sess := transcripts.NewSession(transcripts.Config{}, zerolog.Nop())
		a := &app{
			sess:  sess,
			svc:   transcripts.NewService(sess, stubConverter{}, rec, repo, zerolog.Nop()),
			ready: func() error { return transcripts.ErrRecognizerNotReady },
			log:   zerolog.Nop(),
		}
		t.Cleanup(a.close)
		return a
	}

	working := stubRecognizer{segments: []transcripts.Segment{transcripts.NewSegment("Hello", 0, 1)}}
	var out strings.Builder
	require.NoError(t, runCLI(ctx, build(working), config{Language: "en"}, []string{src}, &out))
	assert.Equal(t, "Hello\n", out.String())

	missing := stubRecognizer{err: transcripts.ErrRecognizerNotReady}
	out.Reset()
	require.NoError(t, runCLI(ctx, build(missing), config{Language: "en"}, []string{src}, &out))
	assert.Equal(t, "Hello\n", out.String())

	other := filepath.Join(t.TempDir(), "other.m4a")
	require.NoError(t, os.WriteFile(other, []byte("other audio"), 0o644))
	err = runCLI(ctx, build(missing), config{Language: "en"}, []string{other}, &out)
	assert.ErrorIs(t, err, transcripts.ErrRecognizerNotReady)
}

func TestServerPartialConfigUpdates(t *testing.T) {
	a := newTestApp(t)
	h := newRouter(context.Background(), a)

	done := make(chan struct{})
	go func() {
		defer close(done)
		do(t, h, http.MethodPut, "/config", `{"mode":"semantic"}`)
	}()
	rec := do(t, h, http.MethodPut, "/config", `{"timestamps":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	<-done

	snap, err := a.sess.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, transcripts.Config{Mode: transcripts.Semantic, IncludeTimestamps: true}, snap.Config)
}

func TestRunCLIUsage(t *testing.T) {
	err := runCLI(context.Background(), newTestApp(t), config{}, nil, &strings.Builder{})
	assert.ErrorContains(t, err, "usage")
}
