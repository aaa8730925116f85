package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"scribe/ffmpeg"
	"scribe/hanzi"
	"scribe/transcripts"
	"scribe/whisperx"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type app struct {
	sess    *transcripts.Session
	svc     transcripts.Service
	ready   func() error
	workDir string
	db      *sql.DB
	log     zerolog.Logger
}

func main() {
	cfg, args, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("starting")
	}
	defer a.close()

	if cfg.Serve {
		err = runServer(ctx, a, cfg.HTTPAddr)
	} else {
		err = runCLI(ctx, a, cfg, args, os.Stdout)
	}
	if err != nil {
		log.Error().Err(err).Msg("scribe failed")
		a.close()
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg config, log zerolog.Logger) (*app, error) {
	conv := ffmpeg.New(cfg.FFmpegPath, cfg.WorkDir, log)
	rec := whisperx.New(cfg.Whisper.Path, cfg.Whisper.Model, cfg.Whisper.Device, log)
	hant, err := hanzi.NewTraditional()
	if err != nil {
		return nil, err
	}

	a := &app{
		ready:   rec.Ready,
		workDir: cfg.WorkDir,
		log:     log,
	}
	if cfg.DBPath != "" {
		if a.db, err = initDB(ctx, cfg.DBPath); err != nil {
			return nil, err
		}
	}

	a.sess = transcripts.NewSession(cfg.Display, log)
	if a.db != nil {
		a.svc = transcripts.NewService(a.sess, conv, rec, transcripts.NewSQLiteRepo(a.db), log)
	} else {
		a.svc = transcripts.NewService(a.sess, conv, rec, nil, log)
	}
	a.svc = a.svc.WithTraditional(hant)
	return a, nil
}

func (a *app) close() {
	a.svc.Wait()
	a.sess.Close()
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// runCLI transcribes the single file in args and writes the transcript to w.
// Files found in the history need neither ffmpeg nor whisperx.
func runCLI(ctx context.Context, a *app, cfg config, args []string, w io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: scribe [flags] <media file>")
	}

	run, err := a.svc.StartTranscribe(ctx, args[0], cfg.Language)
	if err != nil {
		return err
	}
	a.log.Info().Str("run", run.ID).Str("source", run.Source).Bool("cached", run.Cached).Msg("transcribing")
	a.svc.Wait()
	if err := a.sess.Err(); err != nil {
		return err
	}

	var text string
	if cfg.AllModes {
		text, err = renderAllModes(a.sess, cfg.Display.IncludeTimestamps)
	} else {
		var snap transcripts.Snapshot
		snap, err = a.sess.Snapshot()
		text = snap.Transcript
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(w, text)

	if cfg.Copy {
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("copying transcript: %w", err)
		}
		a.log.Info().Int("bytes", len(text)).Msg("transcript copied to clipboard")
	}
	return nil
}

func renderAllModes(sess *transcripts.Session, timestamps bool) (string, error) {
	var b strings.Builder
	for i, m := range transcripts.Modes() {
		out, err := sess.Render(transcripts.Config{Mode: m, IncludeTimestamps: timestamps})
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "== %s: %s ==\n%s", m, m.Description(), out)
	}
	return b.String(), nil
}
