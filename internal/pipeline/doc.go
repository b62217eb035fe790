// Package pipeline runs content-hash-cached stages. Each stage computes the
// metadata its current inputs would produce, compares the key set with what is
// on disk, and only when it differs rotates the previous generation into a
// snapshot, produces new artifacts and persists the new metadata.
package pipeline
