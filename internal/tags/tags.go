package tags

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ReleaseTag describes one published php-src release. Identity is the
// normalized version; the raw tag name is kept for display and for building
// download URLs.
type ReleaseTag struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	SourceURL string `json:"source_url,omitempty"`
}

// Upstream tags look like "php-8.3.0", "php-8.3.0RC2", "php-5.3.7alpha1".
var tagPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?([A-Za-z][A-Za-z0-9]*)?$`)

// ParseName normalizes a raw tag name into a ReleaseTag. It strips the
// leading "php-" prefix case-insensitively and converts trailing pre-release
// markers (RC2, beta1, alpha3) into a SemVer pre-release component. Names
// that do not describe a version are rejected.
func ParseName(name string) (ReleaseTag, bool) {
	trimmed := StripPrefix(strings.TrimSpace(name))
	m := tagPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return ReleaseTag{}, false
	}

	version := m[1] + "." + m[2] + "."
	if m[3] != "" {
		version += m[3]
	} else {
		version += "0"
	}
	if m[4] != "" {
		version += "-" + m[4]
	}

	if _, err := semver.StrictNewVersion(version); err != nil {
		return ReleaseTag{}, false
	}
	return ReleaseTag{Name: strings.TrimSpace(name), Version: version}, true
}

// StripPrefix removes a leading "php-" from a tag name or user query,
// case-insensitively.
func StripPrefix(s string) string {
	if len(s) >= 4 && strings.EqualFold(s[:4], "php-") {
		return s[4:]
	}
	return s
}

// SemVer returns the parsed version, or nil when the stored string is not
// parseable (only possible for hand-edited cache files).
func (t ReleaseTag) SemVer() *semver.Version {
	v, err := semver.NewVersion(t.Version)
	if err != nil {
		return nil
	}
	return v
}

func (t ReleaseTag) prerelease() string {
	v := t.SemVer()
	if v == nil {
		return ""
	}
	return v.Prerelease()
}

// IsAlpha reports whether the tag is an alpha pre-release.
func (t ReleaseTag) IsAlpha() bool {
	return containsFold(t.prerelease(), "alpha")
}

// IsBeta reports whether the tag is a beta pre-release.
func (t ReleaseTag) IsBeta() bool {
	return containsFold(t.prerelease(), "beta")
}

// IsRC reports whether the tag is a release candidate.
func (t ReleaseTag) IsRC() bool {
	return containsFold(t.prerelease(), "rc")
}

// IsStable reports whether the tag is a final release.
func (t ReleaseTag) IsStable() bool {
	return t.prerelease() == ""
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortDescending orders tags newest-first; ties on version fall back to the
// lexicographically highest raw name.
func sortDescending(list []ReleaseTag) {
	sort.SliceStable(list, func(i, j int) bool {
		vi, vj := list[i].SemVer(), list[j].SemVer()
		switch {
		case vi == nil && vj == nil:
			return list[i].Name > list[j].Name
		case vi == nil:
			return false
		case vj == nil:
			return true
		}
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return list[i].Name > list[j].Name
	})
}
