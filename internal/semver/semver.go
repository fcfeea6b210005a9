// Package semver models the three-field versions used by the managed
// runtime and compose tool. The zero value means "unknown". Comparison
// is numeric per field, never lexicographic, so 1.10.0 sorts above 1.9.10.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// versionRegex accepts strict N.N.N with an optional suffix token
// (vendor archives use "-ce"). A leading "v" is tolerated.
var versionRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9.]+))?$`)

// ErrInvalidFormat is returned when a string is not a strict N.N.N version.
var ErrInvalidFormat = errors.New("invalid version format")

// Version is a semantic version triple with an optional suffix token.
// The zero value represents an unknown version. The original text is
// preserved because vendor versions zero-pad fields ("18.09.1") and the
// exact spelling is needed to build artifact names.
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string

	raw   string
	known bool
}

// Unknown is the version reported when detection fails.
var Unknown = Version{}

// Parse parses a strict semantic version string such as "18.09.1" or "17.09.0-ce".
func Parse(s string) (Version, error) {
	matches := versionRegex.FindStringSubmatch(s)
	if matches == nil {
		return Unknown, fmt.Errorf("%w: %s", ErrInvalidFormat, s)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	raw := s
	if len(raw) > 0 && raw[0] == 'v' {
		raw = raw[1:]
	}

	return Version{
		Major:  major,
		Minor:  minor,
		Patch:  patch,
		Suffix: matches[4],
		raw:    raw,
		known:  true,
	}, nil
}

// MustParse parses s and panics on failure. For tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return v
}

// IsUnknown reports whether the version was never detected.
func (v Version) IsUnknown() bool {
	return !v.known
}

// String renders the version exactly as detected, or "unknown" for the zero value.
func (v Version) String() string {
	if v.IsUnknown() {
		return "unknown"
	}

	return v.raw
}

// Compare returns 1 if v > other, 0 if equal, -1 if v < other.
// Fields are compared numerically; an unknown version sorts below any
// known one; suffixes only break exact numeric ties, with the plain
// version sorting above a suffixed one.
func (v Version) Compare(other Version) int {
	if v.IsUnknown() || other.IsUnknown() {
		return boolPairCompare(v.known, other.known)
	}

	if v.Major != other.Major {
		return intCompare(v.Major, other.Major)
	}

	if v.Minor != other.Minor {
		return intCompare(v.Minor, other.Minor)
	}

	if v.Patch != other.Patch {
		return intCompare(v.Patch, other.Patch)
	}

	if v.Suffix == other.Suffix {
		return 0
	}

	if v.Suffix == "" {
		return 1
	}

	if other.Suffix == "" {
		return -1
	}

	if v.Suffix > other.Suffix {
		return 1
	}

	return -1
}

// Equal reports whether both versions are known and identical in all fields.
func (v Version) Equal(other Version) bool {
	return v.known && other.known && v.Compare(other) == 0
}

// Less reports whether v sorts strictly below other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Highest parses every candidate and returns the numerically highest
// version. Candidates that fail the strict format are ignored. When no
// candidate parses, Unknown is returned.
func Highest(candidates []string) Version {
	best := Unknown

	for _, candidate := range candidates {
		v, err := Parse(candidate)
		if err != nil {
			continue
		}

		if best.Less(v) {
			best = v
		}
	}

	return best
}

func intCompare(a, b int) int {
	if a > b {
		return 1
	}

	return -1
}

func boolPairCompare(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}
