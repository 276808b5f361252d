package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	notePolicyOnce sync.Once
	notePolicy     *bluemonday.Policy
)

// Text trims and escapes short identifiers such as a visit method.
func Text(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}

// Note strips every tag from free text staff type, such as a rejection
// reason, keeping only the readable content.
func Note(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(getNotePolicy().Sanitize(value))
}

func getNotePolicy() *bluemonday.Policy {
	notePolicyOnce.Do(func() {
		notePolicy = bluemonday.StrictPolicy()
	})

	return notePolicy
}
