package store

import "strings"

// SplitPath breaks a path into its segments. Empty segments are rejected by
// ValidDocumentPath / ValidCollectionPath rather than here.
func SplitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// ParentCollection returns the collection path a document belongs to.
func ParentCollection(docPath string) string {
	segs := SplitPath(docPath)
	if len(segs) < 2 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], "/")
}

// DocumentID returns the last path segment.
func DocumentID(path string) string {
	segs := SplitPath(path)
	return segs[len(segs)-1]
}

// ValidDocumentPath reports whether path addresses a document: an even,
// non-zero number of non-empty segments.
func ValidDocumentPath(path string) bool {
	segs := SplitPath(path)
	if len(segs) == 0 || len(segs)%2 != 0 {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}

// ValidCollectionPath reports whether path addresses a collection: an odd
// number of non-empty segments.
func ValidCollectionPath(path string) bool {
	segs := SplitPath(path)
	if len(segs)%2 != 1 {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}
