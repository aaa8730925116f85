package transcripts

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type (
	RunState int

	// Snapshot is a consistent read of a session taken on its home goroutine.
	Snapshot struct {
		State      RunState `json:"state"`
		RunID      string   `json:"run_id,omitempty"`
		Source     string   `json:"source,omitempty"`
		Config     Config   `json:"config"`
		Transcript string   `json:"transcript"`
		Preview    string   `json:"preview,omitempty"`
		Err        string   `json:"error,omitempty"`
	}

	// Session owns a Controller on a single goroutine. Workers hand their
	// results to it through the exported methods, which run in submission
	// order on that goroutine. Results are tagged with the run that produced
	// them; only the run started by the latest Load reaches the cache.
	Session struct {
		ctrl    *Controller
		ops     chan func()
		quit    chan struct{}
		stopped chan struct{}
		once    sync.Once

		state   RunState
		run     string
		source  string
		preview string
		err     error

		log zerolog.Logger
	}
)

const (
	Idle RunState = iota
	Converting
	Recognizing
	Ready
	Failed
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Converting:
		return "converting"
	case Recognizing:
		return "recognizing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func NewSession(cfg Config, log zerolog.Logger) *Session {
	s := &Session{
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log.With().Str("component", "session").Logger(),
	}
	s.ctrl = NewController(cfg, func(t string) {
		s.log.Debug().Int("chars", charCount(t)).Msg("transcript published")
	})
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.quit:
			return
		}
	}
}

// Close stops the home goroutine. Later calls return ErrSessionClosed.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.stopped
}

func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(done) }:
	case <-s.quit:
		return ErrSessionClosed
	}
	<-done
	return nil
}

// Load starts run on a new source: the cache is cleared before any work on
// the new file begins, and results of earlier runs are dropped from now on.
func (s *Session) Load(run, source string) error {
	return s.do(func() {
		s.ctrl.Clear()
		s.run = run
		s.source = source
		s.preview = ""
		s.err = nil
		s.state = Converting
		s.log.Info().Str("run_id", run).Str("source", source).Msg("source loaded")
	})
}

// doRun runs fn only while run is the current run.
func (s *Session) doRun(run string, fn func()) error {
	stale := false
	err := s.do(func() {
		if run != s.run {
			stale = true
			return
		}
		fn()
	})
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("run %s: %w", run, ErrStaleRun)
	}
	return nil
}

func (s *Session) Recognizing(run string) error {
	return s.doRun(run, func() { s.state = Recognizing })
}

// Preview publishes partial recognizer output. The cache is not touched.
func (s *Session) Preview(run, text string) error {
	return s.doRun(run, func() { s.preview = Normalize(text) })
}

func (s *Session) Complete(run string, segments []Segment) error {
	return s.doRun(run, func() {
		s.ctrl.Complete(segments)
		s.preview = ""
		s.state = Ready
		s.log.Info().Str("run_id", run).Int("segments", len(segments)).Msg("recognition cached")
	})
}

func (s *Session) Fail(run string, err error) error {
	return s.doRun(run, func() {
		s.err = err
		s.state = Failed
		s.log.Error().Err(err).Str("run_id", run).Str("source", s.source).Msg("run failed")
	})
}

// SetConfig applies cfg and reports whether the transcript was recomputed.
func (s *Session) SetConfig(cfg Config) (bool, error) {
	var changed bool
	err := s.do(func() {
		changed = s.ctrl.SetConfig(cfg)
		s.log.Debug().Stringer("mode", cfg.Mode).Bool("timestamps", cfg.IncludeTimestamps).Bool("recomputed", changed).Msg("config set")
	})
	return changed, err
}

// UpdateConfig applies fn to the current configuration in one step, so
// concurrent partial updates do not overwrite each other. It returns the
// resulting snapshot and whether the transcript was recomputed.
func (s *Session) UpdateConfig(fn func(*Config)) (Snapshot, bool, error) {
	var (
		snap    Snapshot
		changed bool
	)
	err := s.do(func() {
		cfg := s.ctrl.Config()
		fn(&cfg)
		changed = s.ctrl.SetConfig(cfg)
		snap = s.snapshot()
	})
	return snap, changed, err
}

func (s *Session) Refresh() error {
	return s.do(s.ctrl.Refresh)
}

// Clear empties the cache and forgets the current source.
func (s *Session) Clear() error {
	return s.do(func() {
		s.ctrl.Clear()
		s.run = ""
		s.source = ""
		s.preview = ""
		s.err = nil
		s.state = Idle
	})
}

func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() { snap = s.snapshot() })
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:      s.state,
		RunID:      s.run,
		Source:     s.source,
		Config:     s.ctrl.Config(),
		Transcript: s.ctrl.Transcript(),
		Preview:    s.preview,
	}
	if s.err != nil {
		snap.Err = s.err.Error()
	}
	return snap
}

// Err returns the failure of the last run, if any.
func (s *Session) Err() error {
	var err error
	if e := s.do(func() { err = s.err }); e != nil {
		return e
	}
	return err
}

// Render derives the transcript for cfg from the cache without changing the
// session's configuration.
func (s *Session) Render(cfg Config) (string, error) {
	var out string
	err := s.do(func() {
		c := s.ctrl.Cache()
		out = Render(cfg, c.segments, c.plainText)
	})
	return out, err
}
