// Package backup rotates a stage directory's current generation into a
// timestamped snapshot under previous_versions/ before the stage is rebuilt,
// and lists or prunes those snapshots.
package backup
