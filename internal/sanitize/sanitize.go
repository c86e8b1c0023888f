// Package sanitize implements the input-cleaning and dangerous-content
// rejection rules used throughout the kernel for roles, goals, task
// descriptions, and config maps.
package sanitize

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInputRejected is returned when a sanitized input still matches a
// dangerous pattern after cleaning.
var ErrInputRejected = errors.New("input rejected: dangerous content")

// dangerous holds the fixed pattern set from the specification: script
// tags, script-URI schemes, inline event handlers, and common
// code-execution call shapes.
var dangerous = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`), // event-handler attributes, e.g. onerror=
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)\bsystem\s*\(`),
	regexp.MustCompile(`(?i)\bshell_exec\s*\(`),
	regexp.MustCompile(`(?i)\bpassthru\s*\(`),
	regexp.MustCompile(`(?i)\bproc_open\s*\(`),
}

// stripChars removes NUL, CR, LF, and TAB, per the specification.
var stripChars = strings.NewReplacer("\x00", "", "\r", "", "\n", "", "\t", "")

// Clean strips control characters, trims whitespace, and caps the result
// at maxLen runes. It does not reject dangerous content; call Check for
// that. Clean is idempotent: Clean(Clean(x)) == Clean(x).
func Clean(input string, maxLen int) string {
	out := stripChars.Replace(input)
	out = strings.TrimSpace(out)
	if maxLen > 0 {
		r := []rune(out)
		if len(r) > maxLen {
			out = strings.TrimSpace(string(r[:maxLen]))
		}
	}
	return out
}

// Check reports whether input (after Clean) matches any dangerous
// pattern. It does not mutate input.
func Check(input string) error {
	for _, p := range dangerous {
		if p.MatchString(input) {
			return ErrInputRejected
		}
	}
	return nil
}

// Sanitize cleans input to maxLen and rejects it if it still matches a
// dangerous pattern. This is the single entry point used by Agent, Task,
// and config construction.
func Sanitize(input string, maxLen int) (string, error) {
	cleaned := Clean(input, maxLen)
	if err := Check(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
