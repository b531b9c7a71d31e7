package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeFreeText strips all markup from customer-supplied free text and
// trims surrounding whitespace. Used before persisting order notes and
// customization requirements.
func SanitizeFreeText(value string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(value))
}
