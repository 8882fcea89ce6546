package textutil

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	descriptionPolicy     *bluemonday.Policy
	descriptionPolicyOnce sync.Once
)

func policy() *bluemonday.Policy {
	descriptionPolicyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").OnElements("p", "span", "ul", "li")
		p.RequireNoFollowOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		descriptionPolicy = p
	})
	return descriptionPolicy
}

// SanitizeDescription strips scripts, handlers and unknown markup from staff authored product copy while
// keeping basic formatting.
func SanitizeDescription(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(policy().Sanitize(value))
}

// PlainText removes every tag and collapses whitespace. Names must not carry markup. The result is
// unescaped text; callers rendering it as HTML must escape it again.
func PlainText(value string) string {
	stripped := html.UnescapeString(bluemonday.StrictPolicy().Sanitize(value))
	return strings.Join(strings.Fields(stripped), " ")
}
