package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CaseFS lays out the on-disk workspace for cases. Each case owns a
// directory under Root:
//
//	<root>/<case_id>/
//	  raw/<source_system>/<run_id><ext>   verbatim source files
//	  mappers/<source>.yaml               analyst mapper configs
//	  exports/                            generated timelines
type CaseFS struct {
	Root string
}

func (fs CaseFS) CaseDir(caseID string) string {
	return filepath.Join(fs.Root, caseID)
}

func (fs CaseFS) RawDir(caseID, source string) string {
	return filepath.Join(fs.Root, caseID, "raw", source)
}

func (fs CaseFS) MappersDir(caseID string) string {
	return filepath.Join(fs.Root, caseID, "mappers")
}

func (fs CaseFS) ExportsDir(caseID string) string {
	return filepath.Join(fs.Root, caseID, "exports")
}

// Init creates the case directory skeleton.
func (fs CaseFS) Init(caseID string) error {
	for _, dir := range []string{
		fs.CaseDir(caseID),
		filepath.Join(fs.CaseDir(caseID), "raw"),
		fs.MappersDir(caseID),
		fs.ExportsDir(caseID),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating case dir: %w", err)
		}
	}
	return nil
}

// StoreRaw copies a source file into the case's raw store, named by run id
// with the original extension preserved. Returns the stored path.
func (fs CaseFS) StoreRaw(caseID, source, runID, srcPath string) (string, error) {
	dir := fs.RawDir(caseID, source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating raw dir: %w", err)
	}
	dst := filepath.Join(dir, runID+filepath.Ext(srcPath))

	in, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("creating raw copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("copying raw file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing raw copy: %w", err)
	}
	return dst, nil
}
