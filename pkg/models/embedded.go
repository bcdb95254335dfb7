package models

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// ErrNotEvent is returned when content does not hold a well-formed event.
var ErrNotEvent = errors.New("content is not an event")

// Embedded is the result of parsing an event embedded in another event's
// content. Exactly one of Event or Err is meaningful.
type Embedded struct {
	Event nostr.Event
	Err   error
}

func (e Embedded) Ok() bool { return e.Err == nil }

// ParseEmbedded decodes content as an event and validates its shape. The
// signature is carried but never verified.
func ParseEmbedded(content string) Embedded {
	content = strings.TrimSpace(content)
	if content == "" || content[0] != '{' {
		return Embedded{Err: ErrNotEvent}
	}
	var ev nostr.Event
	if err := json.Unmarshal([]byte(content), &ev); err != nil {
		return Embedded{Err: fmt.Errorf("%w: %v", ErrNotEvent, err)}
	}
	if err := Validate(&ev); err != nil {
		return Embedded{Err: err}
	}
	return Embedded{Event: ev}
}

// Validate checks that ev has the fields the cache relies on.
func Validate(ev *nostr.Event) error {
	if !isHex32(ev.ID) {
		return fmt.Errorf("%w: bad id", ErrNotEvent)
	}
	if !isHex32(ev.PubKey) {
		return fmt.Errorf("%w: bad pubkey", ErrNotEvent)
	}
	if ev.CreatedAt <= 0 {
		return fmt.Errorf("%w: missing created_at", ErrNotEvent)
	}
	if ev.Kind < 0 {
		return fmt.Errorf("%w: negative kind", ErrNotEvent)
	}
	return nil
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
