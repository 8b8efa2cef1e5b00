package estimator

import (
	"fmt"

	"github.com/hyperjump/joboffer/internal/storage"
)

// Export copies the model directory to dst. dst must be missing or an empty
// directory; otherwise ErrExport is returned and dst is left untouched.
func (m *Model) Export(dst string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ExportDir(m.dir, dst)
}

// ExportDir copies a model artifact directory from src to dst.
func ExportDir(src, dst string) error {
	if !storage.IsDir(src) || !HasCheckpoint(src) {
		return fmt.Errorf("%w: no model artifact at %s", ErrExport, src)
	}
	empty, err := storage.IsEmptyDir(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExport, err)
	}
	if !empty {
		return fmt.Errorf("%w: destination %s is not empty", ErrExport, dst)
	}
	if err := storage.CopyTree(src, dst); err != nil {
		return fmt.Errorf("%w: copy: %v", ErrExport, err)
	}
	return nil
}
