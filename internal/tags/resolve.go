package tags

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrNoMatch is returned when a query matches no catalogued tag.
	ErrNoMatch = errors.New("no matching version")
	// ErrAmbiguous is returned when a free-form query matches several tags
	// and none of them exactly.
	ErrAmbiguous = errors.New("ambiguous version query")
)

var (
	partialPattern = regexp.MustCompile(`^(\d+)(?:\.(\d+))?$`)
	triplePattern  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// Resolve maps a user-supplied version query to a single release tag. It is
// a pure function over the given catalog.
//
// Rules: a leading "php-" is stripped case-insensitively; an exact version
// or tag-name match always wins; "8" and "8.3" style partial queries select
// the highest stable release within that major or major.minor; anything
// else is treated as a version prefix and must match exactly one tag.
func Resolve(query string, catalog []ReleaseTag) (ReleaseTag, error) {
	q := StripPrefix(strings.TrimSpace(query))
	if q == "" {
		return ReleaseTag{}, fmt.Errorf("%w: empty query", ErrNoMatch)
	}

	for _, t := range catalog {
		if strings.EqualFold(t.Version, q) || strings.EqualFold(StripPrefix(t.Name), q) {
			return t, nil
		}
	}

	// A full triple either matched exactly above or names a version that
	// does not exist; prefix fallback would silently pick a different one.
	if triplePattern.MatchString(q) {
		return ReleaseTag{}, fmt.Errorf("%w: %s", ErrNoMatch, query)
	}

	if m := partialPattern.FindStringSubmatch(q); m != nil {
		return resolvePartial(query, m, catalog)
	}

	return resolvePrefix(query, q, catalog)
}

func resolvePartial(query string, m []string, catalog []ReleaseTag) (ReleaseTag, error) {
	major, _ := strconv.ParseUint(m[1], 10, 64)
	hasMinor := m[2] != ""
	var minor uint64
	if hasMinor {
		minor, _ = strconv.ParseUint(m[2], 10, 64)
	}

	var (
		best  ReleaseTag
		bestV *semver.Version
	)
	for _, t := range catalog {
		v := t.SemVer()
		if v == nil || v.Prerelease() != "" {
			continue
		}
		if v.Major() != major || (hasMinor && v.Minor() != minor) {
			continue
		}
		if bestV == nil || v.GreaterThan(bestV) || (v.Equal(bestV) && t.Name > best.Name) {
			best, bestV = t, v
		}
	}
	if bestV == nil {
		return ReleaseTag{}, fmt.Errorf("%w: %s", ErrNoMatch, query)
	}
	return best, nil
}

func resolvePrefix(query, q string, catalog []ReleaseTag) (ReleaseTag, error) {
	lower := strings.ToLower(q)
	var matches []ReleaseTag
	for _, t := range catalog {
		if strings.HasPrefix(strings.ToLower(t.Version), lower) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return ReleaseTag{}, fmt.Errorf("%w: %s", ErrNoMatch, query)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, 0, len(matches))
		for _, t := range matches {
			names = append(names, t.Version)
			if len(names) == 5 {
				names = append(names, "...")
				break
			}
		}
		return ReleaseTag{}, fmt.Errorf("%w: %s matches %s", ErrAmbiguous, query, strings.Join(names, ", "))
	}
}
