package identity

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxBaseNameRunes caps the derived name so that the playlist directory and
// thumbnail file names stay well below common filesystem limits.
const maxBaseNameRunes = 100

// ErrInvalidName is returned when a filename sanitises to nothing usable.
var ErrInvalidName = errors.New("filename has no usable characters")

// Strategy selects how a base name is disambiguated across jobs.
type Strategy string

const (
	// StrategyNone uses the sanitised filename as-is.
	StrategyNone Strategy = "none"
	// StrategyTimestamp prefixes the name with the current Unix time in milliseconds.
	StrategyTimestamp Strategy = "timestamp"
	// StrategyCounter prefixes the name with a process-wide increasing counter.
	StrategyCounter Strategy = "counter"
	// StrategyHash suffixes the name with a prefix of the upload's content hash.
	StrategyHash Strategy = "hash"
)

// ParseStrategy validates a strategy name. An empty string means StrategyNone.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyNone:
		return StrategyNone, nil
	case StrategyTimestamp:
		return StrategyTimestamp, nil
	case StrategyCounter:
		return StrategyCounter, nil
	case StrategyHash:
		return StrategyHash, nil
	default:
		return "", fmt.Errorf("unknown naming strategy %q", s)
	}
}

// BaseName derives a filesystem-safe identifier from an untrusted filename.
//
// Directory components are discarded, the extension is stripped, whitespace
// and any character outside letters, digits, '-' and '_' become '_', and runs
// of '_' collapse to one. The result never contains a path separator or a
// dot, so it cannot name a parent directory or a hidden file, and applying
// BaseName to its own output returns the same value.
func BaseName(original string) (string, error) {
	name := strings.ReplaceAll(original, "\\", "/")
	name = path.Base(name)
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}

	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	count := 0
	for _, r := range name {
		if count >= maxBaseNameRunes {
			break
		}
		switch {
		case r == utf8.RuneError:
			continue
		case unicode.IsControl(r):
			continue
		case r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
			count++
		default:
			if lastUnderscore {
				continue
			}
			b.WriteRune('_')
			lastUnderscore = true
			count++
		}
	}

	result := strings.Trim(b.String(), "_-")
	if result == "" {
		return "", ErrInvalidName
	}
	return result, nil
}
