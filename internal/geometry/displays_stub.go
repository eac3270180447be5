//go:build !windows

package geometry

import "errors"

// Detect has no display enumeration on this platform; callers fall
// back to the configured layout.
func Detect() (Layout, error) {
	return Layout{}, errors.New("geometry: display detection not supported on this platform")
}
