package tenant

import (
	"regexp"
	"strings"
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,18}[a-z0-9]$`)
	spaceRuns      = regexp.MustCompile(`\s+`)
	disallowed     = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRuns     = regexp.MustCompile(`-+`)
	hyphenTrimEnds = regexp.MustCompile(`^-|-$`)
)

const maxSlugLength = 20

// SlugFromName derives a tenant slug from a display name: lowercase, spaces
// become hyphens, special characters are dropped, hyphen runs collapse, and
// the result is capped at 20 characters.
func SlugFromName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidTenantName
	}

	slug := strings.ToLower(trimmed)
	slug = spaceRuns.ReplaceAllString(slug, "-")
	slug = disallowed.ReplaceAllString(slug, "")
	slug = hyphenRuns.ReplaceAllString(slug, "-")
	slug = hyphenTrimEnds.ReplaceAllString(slug, "")

	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "", ErrInvalidTenantName
	}
	return slug, nil
}

// IsValidSlug reports whether a slug is well-formed: 3-20 characters of
// lowercase letters, digits and hyphens, not starting or ending with a hyphen.
func IsValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}
