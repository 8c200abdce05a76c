// Package locator finds every place in a firewall configuration that
// refers to a given certificate and sorts the hits by the kind of object
// that holds them.
package locator

import "fmt"

// Kind classifies the object that references a certificate. The kind
// decides which update operation applies.
type Kind int

const (
	KindSSLTLSProfile Kind = iota
	KindPortal
	KindGateway
	KindManagementInterface
	KindOther
)

// Kinds lists every kind in discovery precedence order.
var Kinds = []Kind{
	KindSSLTLSProfile,
	KindPortal,
	KindGateway,
	KindManagementInterface,
	KindOther,
}

func (k Kind) String() string {
	switch k {
	case KindSSLTLSProfile:
		return "ssl-tls-profile"
	case KindPortal:
		return "portal"
	case KindGateway:
		return "gateway"
	case KindManagementInterface:
		return "management-interface"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Label is the human-readable plural used in reports.
func (k Kind) Label() string {
	switch k {
	case KindSSLTLSProfile:
		return "SSL/TLS Service Profiles"
	case KindPortal:
		return "GlobalProtect Portals"
	case KindGateway:
		return "GlobalProtect Gateways"
	case KindManagementInterface:
		return "Management Interfaces"
	default:
		return "Other References"
	}
}

// Updatable reports whether references of this kind are rewritten
// automatically. The rest are reported for manual follow-up.
func (k Kind) Updatable() bool {
	return k == KindSSLTLSProfile || k == KindPortal || k == KindGateway
}

// Reference is a single structural location naming the certificate.
type Reference struct {
	Kind Kind
	// ContainerName is the entry name for typed kinds, the
	// "Management Interface: <name>" label for management interfaces and
	// the shortened path for other references.
	ContainerName string
	// Path is the full canonical location in the configuration.
	Path string
}

// ReferenceSet groups references by kind. It is immutable once built;
// accessors hand out copies.
type ReferenceSet struct {
	buckets map[Kind][]Reference
}

// References returns the references of one kind in discovery order.
func (s ReferenceSet) References(kind Kind) []Reference {
	refs := s.buckets[kind]
	if len(refs) == 0 {
		return nil
	}
	out := make([]Reference, len(refs))
	copy(out, refs)
	return out
}

// Names returns the container names of one kind in discovery order.
func (s ReferenceSet) Names(kind Kind) []string {
	refs := s.buckets[kind]
	if len(refs) == 0 {
		return nil
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.ContainerName
	}
	return names
}

// Count returns the number of references of one kind.
func (s ReferenceSet) Count(kind Kind) int {
	return len(s.buckets[kind])
}

// Total returns the number of references across all kinds.
func (s ReferenceSet) Total() int {
	total := 0
	for _, refs := range s.buckets {
		total += len(refs)
	}
	return total
}

// IsEmpty reports whether no reference was found.
func (s ReferenceSet) IsEmpty() bool {
	return s.Total() == 0
}

// UpdatableCount returns how many references will be rewritten
// automatically.
func (s ReferenceSet) UpdatableCount() int {
	n := 0
	for _, k := range Kinds {
		if k.Updatable() {
			n += s.Count(k)
		}
	}
	return n
}

// builder accumulates references while enforcing de-duplication.
type builder struct {
	buckets map[Kind][]Reference
	paths   map[string]bool
	names   map[string]bool
}

func newBuilder() *builder {
	return &builder{
		buckets: make(map[Kind][]Reference),
		paths:   make(map[string]bool),
		names:   make(map[string]bool),
	}
}

// add records ref unless its path is already captured. Reports whether it
// was added.
func (b *builder) add(ref Reference) bool {
	if b.paths[ref.Path] {
		return false
	}
	b.paths[ref.Path] = true
	if ref.Kind != KindOther {
		b.names[ref.ContainerName] = true
	}
	b.buckets[ref.Kind] = append(b.buckets[ref.Kind], ref)
	return true
}

// covered reports whether path lies inside an already captured container
// or its display value equals the name of a typed reference.
func (b *builder) covered(path, display string) bool {
	if b.names[display] {
		return true
	}
	for p := range b.paths {
		if path == p || hasPathPrefix(path, p) {
			return true
		}
	}
	return false
}

func (b *builder) build() ReferenceSet {
	return ReferenceSet{buckets: b.buckets}
}

func hasPathPrefix(path, prefix string) bool {
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
