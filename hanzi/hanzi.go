// Package hanzi converts Chinese text between character sets using the
// OpenCC dictionaries.
package hanzi

import (
	"fmt"
	"scribe/transcripts"

	"github.com/longbridgeapp/opencc"
)

// Traditional rewrites Simplified characters as Traditional ones. Text that
// is already Traditional, or not Chinese, passes through unchanged.
type Traditional struct {
	cc *opencc.OpenCC
}

var _ transcripts.Transliterator = Traditional{}

func NewTraditional() (Traditional, error) {
	cc, err := opencc.New("s2t")
	if err != nil {
		return Traditional{}, fmt.Errorf("loading s2t dictionaries: %w", err)
	}
	return Traditional{cc}, nil
}

func (t Traditional) Convert(text string) (string, error) {
	out, err := t.cc.Convert(text)
	if err != nil {
		return "", fmt.Errorf("converting to traditional: %w", err)
	}
	return out, nil
}
