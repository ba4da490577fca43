// Package risk classifies physiological measurements into ordinal risk levels.
package risk

import (
	"fmt"
	"strings"
)

// Level is an ordinal risk classification. Higher values are more severe.
type Level int

const (
	Green Level = iota
	Blue
	Yellow
	Orange
	Red
)

var levelNames = [...]string{"GREEN", "BLUE", "YELLOW", "ORANGE", "RED"}

var levelBadges = [...]string{"Normal", "Advisory", "Warning", "Urgent", "Critical"}

// Levels lists every level in ascending severity.
func Levels() []Level {
	return []Level{Green, Blue, Yellow, Orange, Red}
}

// Valid reports whether l is a member of the taxonomy.
func (l Level) Valid() bool {
	return l >= Green && l <= Red
}

// Severity returns the integer rank used for comparisons and weighted sums.
func (l Level) Severity() int {
	return int(l)
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Badge returns the short display label for the level.
func (l Level) Badge() string {
	if !l.Valid() {
		return "Unknown"
	}
	return levelBadges[l]
}

// FromSeverity maps a rank back to a level; out-of-range ranks map to Green.
func FromSeverity(s int) Level {
	l := Level(s)
	if !l.Valid() {
		return Green
	}
	return l
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return Green, fmt.Errorf("unknown risk level %q", s)
}

// Max returns the most severe of the given levels, or Green when empty.
func Max(levels ...Level) Level {
	out := Green
	for _, l := range levels {
		if l > out {
			out = l
		}
	}
	return out
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid risk level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
