// Package fingerprint computes stable dedup identities: a content hash for
// events without a native source ID, and file hashes for the duplicate-file
// guard.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/casetrail/casetrail/internal/model"
)

// Event returns the content fingerprint for a canonical event, or "" when
// the source supplied a native identifier (the native triple is the dedup
// key then and no hash is computed). The field subset and its order are
// frozen: changing either silently re-identifies every previously ingested
// event, so any change requires a full case rebuild.
func Event(e *model.Event) string {
	if e.SourceEventID != "" {
		return ""
	}
	core := []string{
		e.EventTS,
		e.SourceSystem,
		e.EventType,
		e.Host,
		e.User,
		e.SrcIP,
		e.DestIP,
		e.ProcessName,
		e.ProcessCmdline,
		e.FileHash,
		e.Outcome,
		e.Severity,
		e.Message,
	}
	sum := sha256.Sum256([]byte(strings.Join(core, "|")))
	return hex.EncodeToString(sum[:])
}

// File returns the sha256 of a file's content, streamed in 1 MiB chunks.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 1024*1024)); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
