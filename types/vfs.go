//nolint:revive // types is a common Go package naming convention
package types

// VirtualEntryKind discriminates virtual file tree entries.
type VirtualEntryKind string

// Virtual entry kind constants.
const (
	VirtualEntryFile   VirtualEntryKind = "file"
	VirtualEntryFolder VirtualEntryKind = "folder"
)

// VirtualFileEntry is one node of the in-memory virtual file tree, keyed by
// absolute path. Files carry content and a binary flag; folders carry
// neither.
type VirtualFileEntry struct {
	// Kind discriminates file vs folder.
	Kind VirtualEntryKind `json:"kind" msgpack:"kind"`
	// Content is the file content. Empty for folders.
	Content []byte `json:"content,omitempty" msgpack:"content,omitempty"`
	// Binary is true when the content is not valid UTF-8 text.
	Binary bool `json:"binary,omitempty" msgpack:"binary,omitempty"`
}
