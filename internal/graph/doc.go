// Package graph holds the visual query graph: typed subject nodes, directed
// property links between them, and the value constraints (subqueries)
// attached to nodes.
//
// # Storage Model
//
// A Repository owns flat node and link collections addressed by id (arena
// style). Links never hold node pointers, only the internal ids of their
// endpoints, so graphs with cycles are ordinary data and a stale link is
// detectable rather than dangling in memory.
//
// # Identity
//
// Node identity across graph states is the node's InternalID; link identity is
// its LinkID. Both come from an ident.Allocator owned by the repository's
// session. The diff engine matches entities exclusively by these ids.
//
// # Flattening
//
// Repository.QuerySet linearizes a graph into the atoms the compiler needs:
// the node table, the triple list, the filter list and the output variables.
// A link whose endpoint is missing is a structural error; flattening never
// drops it silently.
//
// # Serialization
//
// SubQuery variants are a closed set revived through a registry keyed by the
// "constraint_type" tag. Variants needing post-revival fix-up (DateConstraint)
// implement Reviver, which the codec invokes exactly once after decoding.
package graph
