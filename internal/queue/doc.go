// Package queue holds the ordered list of tracks the player advances
// through when a track finishes.
package queue
