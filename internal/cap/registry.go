package cap

import (
	"sync"
	"sync/atomic"

	"kpio/internal/defs"
)

var nextID uint64

type node struct {
	cap      Capability
	children map[Id]struct{}
}

// Registry is the single system-wide capability tree (spec §4.8): it
// tracks every capability's variant, its permitted grant, and its
// derivation edges, independent of which task's Set currently holds a
// reference to any given id.
type Registry struct {
	mu    sync.Mutex
	nodes map[Id]*node
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[Id]*node)}
}

func allocID() Id {
	return Id(atomic.AddUint64(&nextID, 1))
}

// CreateRoot mints a fresh, parentless capability of the given kind
// and grant, and adds it to owner's set. Roots are how the kernel
// seeds a task's initial authority (e.g. a file-subtree root at boot).
func (r *Registry) CreateRoot(owner *Set, kind Kind, grant Restriction) Capability {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Capability{Id: allocID(), Kind: kind, Grant: grant}
	r.nodes[c.Id] = &node{cap: c, children: make(map[Id]struct{})}
	owner.add(c.Id)
	return c
}

// Derive attenuates parentID into a fresh child capability held by
// owner (spec §4.8 `derive`). The caller must own parentID, and
// restriction must be no more permissive than the parent's grant
// under the parent's kind's narrowing rule.
func (r *Registry) Derive(owner *Set, parentID Id, restriction Restriction) (Capability, defs.Err_t) {
	if !owner.Has(parentID) {
		return Capability{}, defs.EPermissionDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	parent, ok := r.nodes[parentID]
	if !ok {
		return Capability{}, defs.ENotFound
	}
	if !isSubset(parent.cap.Kind, restriction, parent.cap.Grant) {
		return Capability{}, defs.EInvalidCapability
	}

	child := Capability{Id: allocID(), Kind: parent.cap.Kind, Grant: restriction, Parent: parentID}
	r.nodes[child.Id] = &node{cap: child, children: make(map[Id]struct{})}
	parent.children[child.Id] = struct{}{}
	owner.add(child.Id)
	return child, defs.OK
}

// Revoke removes id and recursively revokes every descendant edge
// (spec §4.8 `revoke`), dropping the id from owner's set. Ids already
// gone (a prior revoke, or a race with another revoker) are a no-op:
// revocation is idempotent.
func (r *Registry) Revoke(owner *Set, id Id) defs.Err_t {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		owner.remove(id)
		return defs.OK
	}
	if !owner.Has(id) {
		return defs.EPermissionDenied
	}

	var doomed []Id
	var collect func(Id)
	collect = func(cur Id) {
		doomed = append(doomed, cur)
		if cn, ok := r.nodes[cur]; ok {
			for child := range cn.children {
				collect(child)
			}
		}
	}
	collect(id)

	if n.cap.Parent != 0 {
		if p, ok := r.nodes[n.cap.Parent]; ok {
			delete(p.children, id)
		}
	}
	for _, d := range doomed {
		delete(r.nodes, d)
		owner.remove(d)
	}
	return defs.OK
}

// Check tests that owner holds id and that op is no more permissive
// than id's grant (spec §4.8 `check`).
func (r *Registry) Check(owner *Set, id Id, op Restriction) defs.Err_t {
	if !owner.Has(id) {
		return defs.EPermissionDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return defs.ENotFound
	}
	if !isSubset(n.cap.Kind, op, n.cap.Grant) {
		return defs.EPermissionDenied
	}
	return defs.OK
}

// Lookup returns the capability id resolves to, without any
// ownership or permission check; used by IPC transfer (spec §4.7) to
// inspect a capability's kind/grant once Set membership has already
// been validated by the receiver's own Check.
func (r *Registry) Lookup(id Id) (Capability, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return Capability{}, false
	}
	return n.cap, true
}

// Transfer adds id to dst's set without re-deriving it — both holders
// now share the same capability id, matching IPC's "a message's
// transferred capabilities must all have been owned by the sender at
// send time" (spec §3 GLOSSARY) rather than minting a fresh derived
// child on every send.
func (r *Registry) Transfer(src, dst *Set, id Id) defs.Err_t {
	if !src.Has(id) {
		return defs.EPermissionDenied
	}
	r.mu.Lock()
	_, ok := r.nodes[id]
	r.mu.Unlock()
	if !ok {
		return defs.ENotFound
	}
	dst.add(id)
	return defs.OK
}
