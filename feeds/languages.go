package feeds

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nus25/gyoka/models"
	"github.com/samber/lo"
)

// MaxAcceptLanguages caps how many distinct primary codes from an
// Accept-Language header participate in filtering. Extra entries are
// silently ignored, never rejected.
const MaxAcceptLanguages = 10

var langCodePattern = regexp.MustCompile(`^[a-z]{2,3}$`)

// primarySubtag extracts the lowercase primary subtag of a language tag,
// e.g. "en" from "en-US".
func primarySubtag(tag string) string {
	code := strings.Split(strings.TrimSpace(tag), "-")[0]
	return strings.ToLower(code)
}

// NormalizeLanguages canonicalizes a caller-supplied language list into a
// deduplicated, order-stable set of lowercase primary subtags. A nil or
// empty list means "all languages" and yields the wildcard singleton. A
// non-empty list that normalizes to nothing, or contains a code that is
// neither the wildcard nor 2-3 lowercase letters, is a validation failure.
func NormalizeLanguages(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return []string{models.AllLanguages}, nil
	}

	codes := lo.Uniq(lo.Filter(
		lo.Map(tags, func(tag string, _ int) string { return primarySubtag(tag) }),
		func(code string, _ int) bool { return code != "" },
	))

	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: at least one valid language code is required", models.ErrInvalidLanguage)
	}
	for _, code := range codes {
		if code != models.AllLanguages && !langCodePattern.MatchString(code) {
			return nil, fmt.Errorf("%w: primary language tags must be two or three lowercase letters, got %q", models.ErrInvalidLanguage, code)
		}
	}
	return codes, nil
}

// ParseAcceptLanguage extracts filtering preferences from an Accept-Language
// header value. Quality weights are discarded, tags are reduced to their
// primary subtags, duplicates and non-conforming codes are dropped, and the
// result is capped at MaxAcceptLanguages. Junk headers must never fail a
// read, so there is no error path.
func ParseAcceptLanguage(header string) []string {
	codes := []string{}
	for _, entry := range strings.Split(header, ",") {
		entry = strings.Split(entry, ";")[0]
		code := primarySubtag(entry)
		if code == "" {
			continue
		}
		if code != models.AllLanguages && !langCodePattern.MatchString(code) {
			continue
		}
		codes = append(codes, code)
	}
	codes = lo.Uniq(codes)
	if len(codes) > MaxAcceptLanguages {
		codes = codes[:MaxAcceptLanguages]
	}
	return codes
}
