// Package cap is the capability system (spec §4.8, C8): tagged
// variant capabilities, derivation edges, and transitive revocation.
// Biscuit has no capability system of its own (it relies on Unix
// permission bits), so this has no direct teacher file to adapt; it
// follows spec §9's "interface polymorphism over variants" note by
// using a tagged struct plus switch dispatch, the same idiom already
// used for proc.State and sched.BlockReason, rather than an interface
// hierarchy per restriction kind.
package cap

import (
	"strings"
	"sync"
)

// Id is a capability's monotonic, never-reused identifier. Zero is
// reserved to mean "no parent" (a root capability).
type Id uint64

// Kind tags which of the capability variants named in spec §4.8
// (GLOSSARY: "file-subtree with perms, network-endpoint-class,
// MMIO-window, IRQ-line, DMA-budget, IPC-endpoint, process-spawn,
// GPU-adapter-id") a Capability is.
type Kind int

const (
	FileSubtree Kind = iota
	NetworkEndpoint
	MMIOWindow
	IRQLine
	DMABudget
	IPCEndpoint
	ProcessSpawn
	GPUAdapter
)

// Restriction is the permitted-operation payload carried by a
// Capability or passed to derive/check; which fields apply is decided
// by Kind, matched in isSubset rather than through a per-kind type.
type Restriction struct {
	PathPrefix        string
	Read, Write, Exec bool
	PortLo, PortHi    uint16
	Budget            uint64
	Opaque            uint64
}

// Capability is one allocated, tagged-variant capability (spec §3
// GLOSSARY "Capability κ").
type Capability struct {
	Id     Id
	Kind   Kind
	Grant  Restriction
	Parent Id
}

// isSubset reports whether child is no more permissive than parent
// under kind's rules (spec §4.8: "the restriction either narrows a
// path prefix, reduces a port range, limits a size budget, etc.,
// depending on the variant"). Kinds without a documented narrowing
// rule (MMIOWindow, IRQLine, IPCEndpoint, ProcessSpawn, GPUAdapter)
// only derive an identical grant — a deliberate Open Question
// resolution recorded in DESIGN.md, since the spec names no
// attenuation axis for them.
func isSubset(kind Kind, child, parent Restriction) bool {
	switch kind {
	case FileSubtree:
		return strings.HasPrefix(child.PathPrefix, parent.PathPrefix) &&
			(!child.Read || parent.Read) &&
			(!child.Write || parent.Write) &&
			(!child.Exec || parent.Exec)
	case NetworkEndpoint:
		return child.PortLo <= child.PortHi &&
			child.PortLo >= parent.PortLo && child.PortHi <= parent.PortHi
	case DMABudget:
		return child.Budget <= parent.Budget
	case MMIOWindow, IRQLine, IPCEndpoint, ProcessSpawn, GPUAdapter:
		return child.Opaque == parent.Opaque
	default:
		return false
	}
}

// Set is the capability set belonging to one task (spec §3 GLOSSARY
// "Task... capability set"): the ids it currently owns, usable
// directly as an ipc.CapValidator.
type Set struct {
	mu  sync.Mutex
	ids map[Id]struct{}
}

func NewSet() *Set {
	return &Set{ids: make(map[Id]struct{})}
}

func (s *Set) add(id Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *Set) remove(id Id) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Has reports membership.
func (s *Set) Has(id Id) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Check satisfies ipc.CapValidator without cap importing ipc: a
// transferred capability id is valid exactly when the sender's set
// holds it (spec §4.7 "validated against the sender's current
// capability set").
func (s *Set) Check(id uint64) bool { return s.Has(Id(id)) }

// Clone returns an independent Set holding the same ids, the way
// Fork inherits the parent's capability set (spec §4.4 Fork) without
// aliasing the parent's membership: revoking one from the child later
// must not remove it from the parent's set, even though both still
// name the same Registry node until that happens.
func (s *Set) Clone() *Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := NewSet()
	for id := range s.ids {
		c.ids[id] = struct{}{}
	}
	return c
}
