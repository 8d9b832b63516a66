// Package bench finds benchmark files, runs the host CLI against the
// simulator's UART, and follows the .result files it writes.
package bench

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/benchsuite/reproduce/internal/errors"
)

// DefaultPattern selects every .bench file below the benchmarks directory.
const DefaultPattern = "**/*.bench"

// Matcher matches slash-separated paths relative to a root. A leading **/
// also matches files directly under the root.
type Matcher struct {
	pattern string
	globs   []glob.Glob
}

// NewMatcher compiles pattern.
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, errors.NewValidationError("invalid benchmark pattern").
			WithField("bench.pattern").WithValue(pattern).WithCause(err)
	}
	m := &Matcher{pattern: pattern, globs: []glob.Glob{g}}

	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		top, err := glob.Compile(rest, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid benchmark pattern").
				WithField("bench.pattern").WithValue(pattern).WithCause(err)
		}
		m.globs = append(m.globs, top)
	}
	return m, nil
}

// Match reports whether rel matches.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// String returns the pattern.
func (m *Matcher) String() string {
	return m.pattern
}

// Discover walks root and returns the absolute paths of every regular file
// whose root-relative path matches m, in lexical order. It fails with
// errors.ErrNoBenchmarks when nothing matches.
func Discover(afs afero.Fs, root string, m *Matcher) ([]string, error) {
	info, err := afs.Stat(root)
	if err != nil {
		return nil, errors.NewNotFoundError("benchmarks directory", root).WithCause(err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidationError("benchmarks path is not a directory").WithValue(root)
	}

	var files []string
	err = afero.Walk(afs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if m.Match(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}

	if len(files) == 0 {
		return nil, errors.Wrapf(errors.ErrNoBenchmarks, "%s matching %s", root, m)
	}
	return files, nil
}

// ResultPath returns where the CLI writes the result of benchmark file: the
// same path with its extension replaced by .result.
func ResultPath(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".result"
}
