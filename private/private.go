// Package private and subdirectories have
// no backward compatibility guarantees.
//
// This package is intentionally not named "internal",
// so that the key codec, naming strategies and SQL dialects
// can be used by adapters outside this module. Their public
// API is subject to change.
package private
