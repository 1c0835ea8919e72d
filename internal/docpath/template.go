// Package docpath parses Firestore path templates containing a {userId}
// placeholder, such as "users/{userId}/support/default".
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

const Placeholder = "{userId}"

var ErrTemplate = errors.New("invalid path template")

// Kind is what a template points at.
type Kind int

const (
	Document Kind = iota
	Collection
)

func (k Kind) String() string {
	if k == Document {
		return "document"
	}
	return "collection"
}

// Template is a validated path template. The zero value is not usable.
type Template struct {
	raw      string
	segments []string
	userIdx  int
}

// Parse validates raw as a template of the given kind. The placeholder must
// appear exactly once and fill a whole segment.
func Parse(raw string, kind Kind) (Template, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return Template{}, fmt.Errorf("%w: empty path", ErrTemplate)
	}
	segments := strings.Split(trimmed, "/")
	userIdx := -1
	for i, seg := range segments {
		if seg == "" {
			return Template{}, fmt.Errorf("%w: %q has an empty segment", ErrTemplate, raw)
		}
		if seg == Placeholder {
			if userIdx >= 0 {
				return Template{}, fmt.Errorf("%w: %q repeats %s", ErrTemplate, raw, Placeholder)
			}
			userIdx = i
			continue
		}
		if strings.ContainsAny(seg, "{}") {
			return Template{}, fmt.Errorf("%w: %q has an unknown placeholder in %q", ErrTemplate, raw, seg)
		}
	}
	if userIdx < 0 {
		return Template{}, fmt.Errorf("%w: %q is missing %s", ErrTemplate, raw, Placeholder)
	}
	if userIdx%2 == 0 {
		return Template{}, fmt.Errorf("%w: %q places %s in a collection segment", ErrTemplate, raw, Placeholder)
	}
	got := Collection
	if len(segments)%2 == 0 {
		got = Document
	}
	if got != kind {
		return Template{}, fmt.Errorf("%w: %q names a %s, want a %s", ErrTemplate, raw, got, kind)
	}
	return Template{raw: trimmed, segments: segments, userIdx: userIdx}, nil
}

// MustParse is Parse for constants; it panics on error.
func MustParse(raw string, kind Kind) Template {
	t, err := Parse(raw, kind)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Template) String() string {
	return t.raw
}

// Expand substitutes userID into the template.
func (t Template) Expand(userID string) (string, error) {
	if userID == "" || strings.Contains(userID, "/") {
		return "", fmt.Errorf("%w: user id %q cannot fill %s", ErrTemplate, userID, Placeholder)
	}
	out := make([]string, len(t.segments))
	copy(out, t.segments)
	out[t.userIdx] = userID
	return strings.Join(out, "/"), nil
}

// Match reports whether path is an instance of the template and returns the
// user id it carries. Full resource names ("projects/p/databases/d/documents/...")
// are accepted.
func (t Template) Match(path string) (string, bool) {
	segments := strings.Split(Relative(path), "/")
	if len(segments) != len(t.segments) {
		return "", false
	}
	for i, seg := range t.segments {
		if i == t.userIdx {
			if segments[i] == "" {
				return "", false
			}
			continue
		}
		if segments[i] != seg {
			return "", false
		}
	}
	return segments[t.userIdx], true
}

// MatchChild matches path against the template followed by one more
// segment, as for a document inside a collection template. It returns the
// user id and the trailing document id.
func (t Template) MatchChild(path string) (userID, childID string, ok bool) {
	rel := Relative(path)
	i := strings.LastIndex(rel, "/")
	if i < 0 || i == len(rel)-1 {
		return "", "", false
	}
	userID, ok = t.Match(rel[:i])
	if !ok {
		return "", "", false
	}
	return userID, rel[i+1:], true
}

// CollectionID is the id of the last collection in the template: the
// collection group its documents belong to.
func (t Template) CollectionID() string {
	if len(t.segments)%2 == 1 {
		return t.segments[len(t.segments)-1]
	}
	return t.segments[len(t.segments)-2]
}

// Relative strips the "projects/.../documents/" prefix of a full resource name.
func Relative(path string) string {
	const marker = "/documents/"
	if i := strings.Index(path, marker); i >= 0 && strings.HasPrefix(path, "projects/") {
		return path[i+len(marker):]
	}
	return strings.Trim(path, "/")
}
