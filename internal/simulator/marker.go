package simulator

import (
	"fmt"
	"regexp"
)

// DefaultStartupPattern matches the line the simulator prints once its
// first UART is attached to a pseudo-terminal. The capture group is the
// terminal's device path.
const DefaultStartupPattern = `UART: Created (.*) for uart0.`

// Marker maps one line of simulator output to a resource id.
type Marker struct {
	re *regexp.Regexp
}

// NewMarker compiles pattern, which must have exactly one capture group.
func NewMarker(pattern string) (*Marker, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid startup pattern: %w", err)
	}
	if n := re.NumSubexp(); n != 1 {
		return nil, fmt.Errorf("startup pattern must have exactly one capture group, has %d", n)
	}
	return &Marker{re: re}, nil
}

// MustMarker is NewMarker for patterns known to be valid.
func MustMarker(pattern string) *Marker {
	m, err := NewMarker(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Match searches line for the marker and returns the captured resource id.
func (m *Marker) Match(line string) (string, bool) {
	sub := m.re.FindStringSubmatch(line)
	if sub == nil {
		return "", false
	}
	return sub[1], true
}

// String returns the pattern.
func (m *Marker) String() string {
	return m.re.String()
}
