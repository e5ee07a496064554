// Package atomicfile writes files so a reader never observes a partial
// write: a crash mid-write leaves the old file (or nothing), never a
// truncated one.
package atomicfile

import "os"

// Write writes data to path by first writing to a sibling ".tmp" file and
// renaming it into place, matching the commit pattern every storage
// backend in this module uses to persist its JSON snapshot.
func Write(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
