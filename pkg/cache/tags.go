package cache

import (
	"slices"
	"sync"
)

// tagRef identifies one stored entry. scope is empty outside the session backend.
type tagRef struct {
	kind  Kind
	scope string
	key   string
}

// tagIndex maps dependency tags to the entries written with them.
// It lives in process memory only.
type tagIndex struct {
	byTag map[string]map[tagRef]struct{}
	byRef map[tagRef][]string
	mu    sync.Mutex
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		byTag: make(map[string]map[tagRef]struct{}),
		byRef: make(map[tagRef][]string),
	}
}

// set replaces the tags recorded for ref.
func (t *tagIndex) set(ref tagRef, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeLocked(ref)
	if len(tags) == 0 {
		return
	}

	tags = slices.Compact(slices.Sorted(slices.Values(tags)))
	t.byRef[ref] = tags
	for _, tag := range tags {
		refs, ok := t.byTag[tag]
		if !ok {
			refs = make(map[tagRef]struct{})
			t.byTag[tag] = refs
		}
		refs[ref] = struct{}{}
	}
}

func (t *tagIndex) remove(ref tagRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(ref)
}

// take returns every entry tagged with tag and forgets them.
func (t *tagIndex) take(tag string) []tagRef {
	t.mu.Lock()
	defer t.mu.Unlock()

	refs := make([]tagRef, 0, len(t.byTag[tag]))
	for ref := range t.byTag[tag] {
		refs = append(refs, ref)
	}
	for _, ref := range refs {
		t.removeLocked(ref)
	}
	return refs
}

// drop forgets every entry matching fn.
func (t *tagIndex) drop(fn func(tagRef) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for ref := range t.byRef {
		if fn(ref) {
			t.removeLocked(ref)
		}
	}
}

// refs returns a snapshot of the entries of kind that carry tags.
func (t *tagIndex) refs(kind Kind) []tagRef {
	t.mu.Lock()
	defer t.mu.Unlock()

	refs := make([]tagRef, 0, len(t.byRef))
	for ref := range t.byRef {
		if ref.kind == kind {
			refs = append(refs, ref)
		}
	}
	return refs
}

func (t *tagIndex) removeLocked(ref tagRef) {
	for _, tag := range t.byRef[ref] {
		refs := t.byTag[tag]
		delete(refs, ref)
		if len(refs) == 0 {
			delete(t.byTag, tag)
		}
	}
	delete(t.byRef, ref)
}
