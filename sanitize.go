package literal

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans rendered markup before it replaces element content.
// *bluemonday.Policy satisfies it.
type Sanitizer interface {
	Sanitize(markup string) string
}

// SanitizerFor maps a policy name to a Sanitizer. "none" and "" give nil.
func SanitizerFor(name string) (Sanitizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "ugc":
		return bluemonday.UGCPolicy(), nil
	case "strict":
		return bluemonday.StrictPolicy(), nil
	}
	return nil, fmt.Errorf("unknown sanitize policy %q", name)
}
