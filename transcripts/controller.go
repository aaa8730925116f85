package transcripts

import "strings"

type (
	// Cache holds the raw result of the last completed recognition.
	// plainText is always the newline join of the normalized segment texts.
	Cache struct {
		segments  []Segment
		plainText string
	}

	// Controller couples the cache and the display configuration to the
	// displayed transcript. It is not safe for concurrent use; Session
	// serializes access to it.
	Controller struct {
		cache     Cache
		cfg       Config
		displayed string
		onChange  func(string)
	}
)

// Store replaces the cached result with a copy of segments.
func (c *Cache) Store(segments []Segment) {
	c.segments = append([]Segment(nil), segments...)
	texts := make([]string, len(c.segments))
	for i, s := range c.segments {
		texts[i] = Normalize(s.Text)
	}
	c.plainText = strings.Join(texts, "\n")
}

func (c *Cache) Clear() {
	c.segments = nil
	c.plainText = ""
}

func (c *Cache) Empty() bool {
	return len(c.segments) == 0
}

// Segments returns a copy of the cached segments.
func (c *Cache) Segments() []Segment {
	return append([]Segment(nil), c.segments...)
}

func (c *Cache) PlainText() string {
	return c.plainText
}

// NewController returns an empty controller. onChange, if not nil, is called
// with every newly published transcript.
func NewController(cfg Config, onChange func(string)) *Controller {
	return &Controller{cfg: cfg, onChange: onChange}
}

// Complete caches a finished recognition and publishes its transcript
// under the current configuration.
func (c *Controller) Complete(segments []Segment) {
	c.cache.Store(segments)
	c.recompute()
}

// SetConfig applies cfg and reports whether the transcript was recomputed.
// Nothing happens when cfg equals the current configuration or the cache
// is empty.
func (c *Controller) SetConfig(cfg Config) bool {
	if cfg == c.cfg {
		return false
	}
	c.cfg = cfg
	if c.cache.Empty() {
		return false
	}
	c.recompute()
	return true
}

func (c *Controller) SetMode(mode SplittingMode) bool {
	cfg := c.cfg
	cfg.Mode = mode
	return c.SetConfig(cfg)
}

func (c *Controller) SetIncludeTimestamps(include bool) bool {
	cfg := c.cfg
	cfg.IncludeTimestamps = include
	return c.SetConfig(cfg)
}

// Refresh recomputes the transcript without touching the configuration.
func (c *Controller) Refresh() {
	if c.cache.Empty() {
		return
	}
	c.recompute()
}

// Clear drops the cached result and the displayed transcript.
func (c *Controller) Clear() {
	c.cache.Clear()
	c.publish("")
}

func (c *Controller) Transcript() string {
	return c.displayed
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) Cached() bool {
	return !c.cache.Empty()
}

func (c *Controller) Cache() *Cache {
	return &c.cache
}

func (c *Controller) recompute() {
	c.publish(Render(c.cfg, c.cache.segments, c.cache.plainText))
}

func (c *Controller) publish(transcript string) {
	c.displayed = transcript
	if c.onChange != nil {
		c.onChange(transcript)
	}
}
