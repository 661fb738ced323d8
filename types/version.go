//nolint:revive // types is a common Go package naming convention
package types

// Version is the foundry version.
// Leaf constant so every package can reference it without import cycles.
const Version = "0.1.0"
