// Package stagemeta defines the typed metadata records persisted in each stage
// directory's metadata.json, keyed by artifact content hash, and the atomic load
// and save helpers that reject malformed files as integrity errors.
package stagemeta
