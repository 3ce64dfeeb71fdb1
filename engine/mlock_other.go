//go:build !linux

package engine

func lockMemory() error {
	return nil
}
