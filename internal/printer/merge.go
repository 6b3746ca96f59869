package printer

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

var disableConfigOnce sync.Once

// mergeFiles concatenates in into out. Replaced in tests.
var mergeFiles = func(in []string, out string) error {
	disableConfigOnce.Do(api.DisableConfigDir)
	return api.MergeCreateFile(in, out, false, nil)
}

// ArtifactName returns the file name for a page produced under scope for id.
// Path separators in id are replaced so every artifact lands in one directory.
func ArtifactName(scope, id, ext string) string {
	id = strings.NewReplacer("/", "-", "\\", "-").Replace(id)
	ext = strings.TrimPrefix(ext, ".")
	if scope == "" {
		return id + "." + ext
	}
	return scope + "-" + id + "." + ext
}

// OverviewName returns the file name of a round's overview page.
func OverviewName(round string) string {
	return ArtifactName(round, "overview", "pdf")
}

// MergedName returns the file name of a round's merged document.
func MergedName(round string) string {
	return ArtifactName("", round, "pdf")
}

// RoundFiles lists the artifacts of r in merge order: the overview first,
// then the group pages in the order they were produced.
func RoundFiles(r model.Round, workDir string) []string {
	files := make([]string, 0, len(r.Pages)+1)
	if r.Overview != "" {
		files = append(files, filepath.Join(workDir, r.Overview))
	}
	for _, p := range r.Pages {
		files = append(files, filepath.Join(workDir, p))
	}
	return files
}

// MergeRound writes the round's pages into a single PDF in outDir and
// returns its path. Every expected artifact must exist; the first missing
// one is reported as a PDFMergeError.
func MergeRound(r model.Round, workDir, outDir string) (string, error) {
	files := RoundFiles(r, workDir)
	if len(files) == 0 {
		return "", &model.PDFMergeError{Round: r.Label, Err: eris.New("no pages to merge")}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return "", &model.PDFMergeError{Round: r.Label, Missing: filepath.Base(f), Err: err}
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &model.PDFMergeError{Round: r.Label, Err: eris.Wrap(err, "printer: create merge dir")}
	}

	out := filepath.Join(outDir, MergedName(r.Label))
	var err error
	if len(files) == 1 {
		err = copyFile(files[0], out)
	} else {
		err = mergeFiles(files, out)
	}
	if err != nil {
		return "", &model.PDFMergeError{Round: r.Label, Err: eris.Wrap(err, "printer: merge")}
	}

	zap.L().Info("merged round",
		zap.String("round", r.Label),
		zap.Int("pages", len(files)),
		zap.Bool("overview", r.Overview != ""),
		zap.String("path", out),
	)
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
