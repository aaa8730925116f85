package transcripts

import "errors"

// Failures reported by the collaborators around the segmentation core.
// The core itself never returns them.
var (
	ErrSourceNotFound     = errors.New("source file not found")
	ErrUnsupportedFormat  = errors.New("unsupported source format")
	ErrConverterNotFound  = errors.New("audio converter not found")
	ErrConversionFailed   = errors.New("audio conversion failed")
	ErrRecognizerNotReady = errors.New("recognizer not ready")
	ErrModelNotLoaded     = errors.New("speech model not loaded")
	ErrRecognitionFailed  = errors.New("recognition failed")
	ErrUnknownMode        = errors.New("unknown splitting mode")
	ErrNotFound           = errors.New("not found")
	ErrSessionClosed      = errors.New("session closed")
	ErrStaleRun           = errors.New("run superseded by a newer source")
)
