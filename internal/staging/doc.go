// Package staging manages the scratch directories downloads land in before
// they are promoted into a stage directory.
package staging
