package event

// Kind identifies the nature of a filesystem event. The first five mirror
// what a filesystem notification API can report directly; Copied never comes
// from the filesystem itself; it is synthesized by the aggregator once a
// Created event is found to have a plausible source elsewhere in the tree.
type Kind string

const (
	Created          Kind = "created"
	Deleted          Kind = "deleted"
	Moved            Kind = "moved"
	ModifiedContent  Kind = "modified_content"
	ModifiedMetadata Kind = "modified_metadata"
	Copied           Kind = "copied"
)
