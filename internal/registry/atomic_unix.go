//go:build !windows

package registry

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile writes data to path atomically: write to a sibling temp
// file in the same directory, fsync, then rename over the target.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
