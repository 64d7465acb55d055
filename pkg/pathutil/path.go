// Package pathutil provides the relative-path type shared by the local state
// index and the event aggregator. Every path inside the core is forward-slash
// prefixed and relative to a watched root, never touching the filesystem or
// resolving symlinks.
package pathutil

import (
	"path"
	"strings"
)

// Root is the relative path denoting the watched directory itself.
const Root = RelativePath("/")

// RelativePath is a forward-slash-prefixed path relative to a watched
// directory. The zero value is not valid; use Normalize or Root.
//
// RelativePath exists so that ancestor/descendant comparisons and basename
// extraction are methods on a distinct type instead of ad hoc string slicing
// scattered across the aggregator.
type RelativePath string

// Normalize converts a raw path (as produced by trimming an absolute path
// down to its watched-root-relative form) into a well-formed RelativePath.
// It collapses duplicate slashes, drops "." segments, and rewrites the
// degenerate "/." case to "/".
func Normalize(raw string) RelativePath {
	if raw == "" {
		return Root
	}
	cleaned := path.Clean("/" + raw)
	if cleaned == "/." {
		cleaned = "/"
	}
	return RelativePath(cleaned)
}

// String returns the path as a plain string.
func (p RelativePath) String() string {
	return string(p)
}

// IsRoot returns true if p is the watched directory itself.
func (p RelativePath) IsRoot() bool {
	return p == Root
}

// withTrailingSlash returns the path with exactly one trailing slash, used
// internally for prefix comparisons so that "/dir1" doesn't spuriously match
// "/dir10".
func (p RelativePath) withTrailingSlash() string {
	s := string(p)
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// ComesAfter returns true if p is a strict descendant of other, i.e. p is
// nested somewhere underneath other but is not other itself.
func (p RelativePath) ComesAfter(other RelativePath) bool {
	if p == other {
		return false
	}
	return strings.HasPrefix(p.withTrailingSlash(), other.withTrailingSlash())
}

// ComesBefore returns true if other is a strict descendant of p.
func (p RelativePath) ComesBefore(other RelativePath) bool {
	return other.ComesAfter(p)
}

// SameOrComesAfter returns true if p equals other or is a strict descendant
// of it.
func (p RelativePath) SameOrComesAfter(other RelativePath) bool {
	return p == other || p.ComesAfter(other)
}

// SameOrComesBefore returns true if p equals other or is a strict ancestor
// of it.
func (p RelativePath) SameOrComesBefore(other RelativePath) bool {
	return p == other || p.ComesBefore(other)
}

// Parent returns the parent of p and true, or the zero value and false if p
// is the root (the root has no parent).
func (p RelativePath) Parent() (RelativePath, bool) {
	if p.IsRoot() {
		return "", false
	}
	dir := path.Dir(string(p))
	return RelativePath(dir), true
}

// Base returns the final path component of p (the filename or directory
// name).
func (p RelativePath) Base() string {
	return path.Base(string(p))
}

// Join appends name as a new final component of p.
func (p RelativePath) Join(name string) RelativePath {
	if p.IsRoot() {
		return Normalize(name)
	}
	return Normalize(string(p) + "/" + name)
}
