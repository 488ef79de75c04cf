//go:build race

package recycle

// RaceEnabled is true when the binary is built with the race detector.
const RaceEnabled = true
