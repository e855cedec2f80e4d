package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// CollisionResolver tracks file names claimed by images during one apply
// pass and resolves duplicates by appending "<sep>N" to the stem. Names are
// compared case-insensitively. All methods are goroutine-safe.
type CollisionResolver struct {
	mu       sync.Mutex
	sep      string
	taken    func(name string) bool // reports names already used outside the pass
	owners   map[string]string      // lowercased name → owner key
	counters map[string]int         // lowercased requested name → next counter
}

// NewCollisionResolver creates a resolver. taken may be nil; otherwise it
// is consulted for names not yet claimed in this pass, e.g. files already
// on disk.
func NewCollisionResolver(sep string, taken func(name string) bool) *CollisionResolver {
	if sep == "" {
		sep = "_"
	}
	return &CollisionResolver{
		sep:      sep,
		taken:    taken,
		owners:   make(map[string]string),
		counters: make(map[string]int),
	}
}

// Claim marks name as owned by owner without resolving. Used to register
// names that are already correct so later images cannot take them.
func (cr *CollisionResolver) Claim(owner, name string) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.owners[strings.ToLower(name)] = owner
}

// Resolve returns the final name for owner. If requested is free (or
// already owned by owner) it is returned as-is; otherwise a numbered
// variant starting at 2 is generated.
func (cr *CollisionResolver) Resolve(owner, requested string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	key := strings.ToLower(requested)
	if cr.free(owner, requested) {
		cr.owners[key] = owner
		return requested
	}

	ext := filepath.Ext(requested)
	stem := strings.TrimSuffix(requested, ext)

	counter := cr.counters[key]
	if counter < 2 {
		counter = 2
	}
	for {
		candidate := fmt.Sprintf("%s%s%d%s", stem, cr.sep, counter, ext)
		if cr.free(owner, candidate) {
			cr.counters[key] = counter + 1
			cr.owners[strings.ToLower(candidate)] = owner
			return candidate
		}
		counter++
	}
}

func (cr *CollisionResolver) free(owner, name string) bool {
	if o, ok := cr.owners[strings.ToLower(name)]; ok {
		return o == owner
	}
	return cr.taken == nil || !cr.taken(name)
}
