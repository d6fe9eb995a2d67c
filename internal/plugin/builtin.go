package plugin

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed builtin
var builtinFS embed.FS

// SeedBuiltins writes the plugins shipped with the binary into dir. Files
// whose content already matches are left untouched so their mtime is kept.
func SeedBuiltins(dir string) (int, error) {
	written := 0
	err := fs.WalkDir(builtinFS, "builtin", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel("builtin", path)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		src, err := builtinFS.ReadFile(path)
		if err != nil {
			return err
		}
		if cur, err := os.ReadFile(target); err == nil && bytes.Equal(cur, src) {
			return nil
		}
		if err := os.WriteFile(target, src, 0o644); err != nil {
			return err
		}
		written++
		return nil
	})
	return written, err
}
