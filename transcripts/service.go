package transcripts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"scribe/b3"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type (
	repo interface {
		CreateSpeech(ctx context.Context, name string, blake3Hash string) (Speech, error)
		GetSpeechByHash(ctx context.Context, blake3Hash string) (Speech, error)
		InsertSegments(ctx context.Context, speechID int64, segments []Segment) error
		ListSegments(ctx context.Context, speechID int64) ([]Segment, error)
	}

	// active holds the cancel func of the run the session currently follows.
	active struct {
		mu     sync.Mutex
		cancel context.CancelFunc
	}

	// Run describes one accepted source file.
	Run struct {
		ID         string `json:"id"`
		Source     string `json:"source"`
		Language   string `json:"language"`
		Blake3Hash  string `json:"blake3_hash"`
		Traditional bool   `json:"traditional"`
		Cached      bool   `json:"cached"`
	}

	// Service runs conversion and recognition on worker goroutines and
	// hands the results to a Session.
	Service struct {
		sess *Session
		conv Converter
		rec  Recognizer
		hant Transliterator
		r    repo
		wg   *sync.WaitGroup
		cur  *active
		log  zerolog.Logger
	}
)

// NewService wires the pipeline. r may be nil to disable the history store.
func NewService(sess *Session, conv Converter, rec Recognizer, r repo, log zerolog.Logger) Service {
	var wg sync.WaitGroup
	return Service{
		sess: sess,
		conv: conv,
		rec:  rec,
		r:    r,
		wg:   &wg,
		cur:  &active{},
		log:  log.With().Str("component", "service").Logger(),
	}
}

// WithTraditional returns a copy of s that rewrites results of runs
// requested in Traditional Chinese through t.
func (s Service) WithTraditional(t Transliterator) Service {
	s.hant = t
	return s
}

// Wait blocks until every started run has reached the session.
func (s Service) Wait() {
	s.wg.Wait()
}

// StartTranscribe validates filePath, clears the session cache and starts
// converting and recognizing it in the background, bounded by ctx. A file
// recognized before is served from the history store instead.
func (s Service) StartTranscribe(ctx context.Context, filePath string, lang string) (Run, error) {
	if !IsSupportedFile(filePath) {
		return Run{}, fmt.Errorf("start transcribe: %s: %w", filepath.Ext(filePath), ErrUnsupportedFormat)
	}
	blake3Hash, err := b3.SumFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return Run{}, fmt.Errorf("start transcribe: %s: %w", filePath, ErrSourceNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("start transcribe: %w", err)
	}

	run := Run{
		ID:          uuid.NewString(),
		Source:      filePath,
		Language:    RecognizerLanguage(lang),
		Blake3Hash:  blake3Hash,
		Traditional: WantsTraditional(lang),
	}
	log := s.log.With().Str("run_id", run.ID).Str("source", filePath).Logger()

	if err := s.sess.Load(run.ID, filePath); err != nil {
		return run, fmt.Errorf("start transcribe: %w", err)
	}
	runCtx := s.cur.replace(ctx)

	if segments, ok := s.fromHistory(ctx, blake3Hash, log); ok {
		run.Cached = true
		if err := s.sess.Complete(run.ID, s.present(run, segments, log)); err != nil {
			return run, fmt.Errorf("start transcribe: %w", err)
		}
		return run, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		segments, err := s.transcribe(runCtx, run, log)
		if err != nil {
			if err := s.sess.Fail(run.ID, err); err != nil {
				log.Debug().Err(err).Msg("dropping failure")
			}
			return
		}
		if err := s.sess.Complete(run.ID, s.present(run, segments, log)); err != nil {
			if !errors.Is(err, ErrStaleRun) {
				log.Warn().Err(err).Msg("reporting completion")
				return
			}
			log.Info().Msg("run superseded, result kept in history only")
		}
		s.remember(ctx, run, segments, log)
	}()

	return run, nil
}

// replace cancels the previous run and returns the context of the new one.
func (a *active) replace(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	a.mu.Lock()
	prev := a.cancel
	a.cancel = cancel
	a.mu.Unlock()
	if prev != nil {
		prev()
	}
	return ctx
}

// present applies the character set the run was requested in. Segments that
// cannot be converted keep the recognizer's text.
func (s Service) present(run Run, segments []Segment, log zerolog.Logger) []Segment {
	if !run.Traditional || s.hant == nil {
		return segments
	}
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		text, err := s.hant.Convert(seg.Text)
		if err != nil {
			log.Warn().Err(err).Int("segment", i).Msg("converting to traditional")
			continue
		}
		out[i].Text = text
	}
	return out
}

func (s Service) presentText(run Run, text string) string {
	if !run.Traditional || s.hant == nil {
		return text
	}
	if converted, err := s.hant.Convert(text); err == nil {
		return converted
	}
	return text
}

func (s Service) transcribe(ctx context.Context, run Run, log zerolog.Logger) ([]Segment, error) {
	audioPath, err := s.conv.Convert(ctx, run.Source)
	if err != nil {
		return nil, fmt.Errorf("transcribing: %w", err)
	}
	log.Info().Str("audio", audioPath).Msg("audio converted")

	if err := s.sess.Recognizing(run.ID); err != nil {
		return nil, fmt.Errorf("transcribing: %w", err)
	}
	segments, err := s.rec.Transcribe(ctx, audioPath, run.Language, func(text string) {
		if err := s.sess.Preview(run.ID, s.presentText(run, text)); err != nil {
			log.Debug().Err(err).Msg("dropping preview")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("transcribing: %w", err)
	}
	log.Info().Int("segments", len(segments)).Msg("recognition done")
	return segments, nil
}

func (s Service) fromHistory(ctx context.Context, blake3Hash string, log zerolog.Logger) ([]Segment, bool) {
	if s.r == nil {
		return nil, false
	}
	speech, err := s.r.GetSpeechByHash(ctx, blake3Hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Msg("history lookup")
		}
		return nil, false
	}
	if !speech.IsTranscribed {
		return nil, false
	}
	segments, err := s.r.ListSegments(ctx, speech.ID)
	if err != nil {
		log.Warn().Err(err).Msg("history load")
		return nil, false
	}
	log.Info().Int64("speech_id", speech.ID).Int("segments", len(segments)).Msg("served from history")
	return segments, true
}

func (s Service) remember(ctx context.Context, run Run, segments []Segment, log zerolog.Logger) {
	if s.r == nil {
		return
	}
	speech, err := s.r.CreateSpeech(ctx, filepath.Base(run.Source), run.Blake3Hash)
	if err != nil {
		log.Warn().Err(err).Msg("saving history")
		return
	}
	if err := s.r.InsertSegments(ctx, speech.ID, segments); err != nil {
		log.Warn().Err(err).Msg("saving history")
	}
}
