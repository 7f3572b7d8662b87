// Package errid assigns a stable numeric identifier to the origin of an
// error: the (file, function, line-offset) tuple of the innermost frame
// where it was raised. Ids 1, 2, 3 and 5 are reserved for the engine's own
// synthetic error categories (see manager and verrors); all other ids are
// derived here.
package errid

import (
	"hash/fnv"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/Hochfrequenz/bo4e-migration-framework/cache"
)

// Reserved synthetic error ids for the engine's own error categories.
const (
	IDParameterProviderErrored = 1
	IDDependencyAbandoned      = 2
	IDTimeout                  = 3
	IDTypeMismatch             = 5
)

// Identifier is the raise-site tuple an id is derived from.
type Identifier struct {
	File     string
	Function string
	Offset   int // line offset from the enclosing function's entry line
}

// Tagged may be implemented by a validator's own error type to claim a
// stable custom id directly, bypassing raise-site introspection.
type Tagged interface {
	ErrorTag() string
}

// Registry is a process-wide, concurrency-safe bidirectional map from
// Identifier to id. Use Default for the shared instance.
type Registry struct {
	mu      sync.Mutex
	forward map[Identifier]int
	reverse map[int]Identifier
}

// New creates an empty Registry. Most callers should use Default().
func New() *Registry {
	return &Registry{
		forward: make(map[Identifier]int),
		reverse: make(map[int]Identifier),
	}
}

var defaultRegistry = New()

// Default returns the process-wide Registry singleton.
func Default() *Registry { return defaultRegistry }

// frameCache memoizes the (function name, entry line) resolution of a
// program counter. A validator that raises from the same call site on
// every record re-resolves the identical pc on every call; runtime.FuncForPC
// and FuncForPC.FileLine both walk the binary's function table, so caching
// by pc turns repeat raise sites into a single map lookup.
var frameCache = cache.New[uintptr, frame](4096)

type frame struct {
	name      string
	entryLine int
}

// IdentifierForError inspects the call stack at the point an error
// recovery site runs (typically inside a deferred recover or right after
// an error is caught) and returns the identifier of the frame skip levels
// above its caller (skip 0 is the caller itself).
func IdentifierForError(skip int) Identifier {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Identifier{File: "unknown", Function: "unknown", Offset: 0}
	}
	fr := frameCache.GetOrSet(pc, func() frame {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			return frame{name: "unknown", entryLine: line}
		}
		_, entryLine := fn.FileLine(fn.Entry())
		return frame{name: fn.Name(), entryLine: entryLine}
	})
	return Identifier{File: shortFile(file), Function: fr.name, Offset: line - fr.entryLine}
}

func shortFile(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// IDFor returns the stable id for identifier, allocating one on first
// sight. Allocation seeds a PRNG from a hash of (file+function) mixed with
// the line offset and draws a 7-digit integer; on collision with an
// already-assigned id it reseeds with the colliding id and redraws.
func (r *Registry) IDFor(identifier Identifier) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.forward[identifier]; ok {
		return id
	}

	var lastID *int
	var id int
	for {
		id = generate(identifier, lastID)
		if _, taken := r.reverse[id]; !taken {
			break
		}
		collided := id
		lastID = &collided
	}

	r.forward[identifier] = id
	r.reverse[id] = identifier
	return id
}

func generate(identifier Identifier, lastID *int) int {
	var seed uint64
	if lastID != nil {
		seed = uint64(*lastID)
	} else {
		h := fnv.New64a()
		_, _ = h.Write([]byte(identifier.File + identifier.Function))
		seed = h.Sum64() + uint64(identifier.Offset)
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	r := rand.New(src)
	return 1_000_000 + r.IntN(9_000_000)
}

// IDForTag returns the stable id registered for tag, allocating one on
// first sight exactly as IDFor does for a raise-site Identifier. This is
// the Tagged fast path: a validator's own error type names a tag directly
// instead of relying on call-stack introspection, but the id is still
// drawn from and deduplicated against the same registry, so a tagged id
// can never collide with a raise-site-derived one.
func (r *Registry) IDForTag(tag string) int {
	return r.IDFor(Identifier{Function: tag})
}

// Lookup returns the Identifier an id was allocated for, if any.
func (r *Registry) Lookup(id int) (Identifier, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.reverse[id]
	return ident, ok
}
