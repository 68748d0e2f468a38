package chat

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// ErrInvalidMessage is the sentinel wrapped by all validation failures.
var ErrInvalidMessage = errors.New("chat: invalid message")

// ValidateMessage checks that message content meets requirements. An empty
// content is allowed only when the message carries a file attachment.
func ValidateMessage(content, fileURL string) error {
	if len(content) == 0 && fileURL == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if len(content) > MaxMessageBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrInvalidMessage, MaxMessageBytes)
	}
	if utf8.RuneCountInString(content) > MaxTextChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrInvalidMessage, MaxTextChars)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: invalid UTF-8", ErrInvalidMessage)
	}
	return nil
}
