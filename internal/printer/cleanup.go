package printer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var generated = map[string]bool{".pdf": true, ".jpg": true, ".jpeg": true, ".png": true}

// Cleanup removes generated rasters and page PDFs from the top level of
// workDir. Files whose base name is in keep, such as page templates, and
// all subdirectories are left alone. It returns the number of files removed.
func Cleanup(workDir string, keep []string) (int, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrap(err, "printer: read work dir")
	}
	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[filepath.Base(k)] = true
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || kept[e.Name()] || !generated[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		if err := os.Remove(filepath.Join(workDir, e.Name())); err != nil {
			return removed, eris.Wrapf(err, "printer: remove %s", e.Name())
		}
		removed++
	}
	zap.L().Info("cleaned work dir", zap.String("dir", workDir), zap.Int("removed", removed))
	return removed, nil
}
