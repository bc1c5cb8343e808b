// Package secrets holds the helpers for handling secret material in memory.
package secrets

// Zero overwrites every byte of b. Callers wipe passwords and extracted
// secret values as soon as they are no longer needed instead of waiting
// for the garbage collector.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Copy returns an independent copy of b, so the original can be wiped
// while the copy lives on.
func Copy(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
