package group

import (
	"fmt"
	"strings"
	"unicode"
)

// HandleSigil is the required leading character of a player handle.
const HandleSigil = '@'

// ValidateJoin checks the display identity a player supplies on join.
// Rules: name non-empty; handle non-empty, at least one character after the
// leading sigil, no whitespace anywhere.
func ValidateJoin(name, handle string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	h := strings.TrimSpace(handle)
	if h == "" {
		return fmt.Errorf("%w: handle is required", ErrValidation)
	}
	if h[0] != HandleSigil || len(h) < 2 {
		return fmt.Errorf("%w: handle must start with %q", ErrValidation, string(HandleSigil))
	}
	for _, r := range h {
		if unicode.IsSpace(r) {
			return fmt.Errorf("%w: handle cannot contain whitespace", ErrValidation)
		}
	}
	return nil
}

func validateQuestion(text string, options []string, correctIndex int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: question text is required", ErrValidation)
	}
	if len(options) < 2 {
		return fmt.Errorf("%w: at least two options are required", ErrValidation)
	}
	for i, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrValidation, i)
		}
	}
	if correctIndex < 0 || correctIndex >= len(options) {
		return fmt.Errorf("%w: correctIndex out of range", ErrValidation)
	}
	return nil
}
