// Package cache keeps fetched audio bytes so that replaying, looping on the
// native path and re-routing do not download the same resource twice.
// Level one is an in-memory LRU; level two is a zstd-compressed directory
// that survives restarts.
package cache
