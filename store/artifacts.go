package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/storelens/storelens/models"
)

// ArtifactWriter lays out evidence bundles on disk:
//
//	<root>/<session>/<page_type>_<viewport>/screenshot.png
//	                                        visible.txt
//	                                        features.json
//	                                        page.html.gz
//
// Absent pieces (no screenshot, HTML storage off) simply have no file.
type ArtifactWriter struct {
	root string
}

// NewArtifactWriter creates a writer rooted at dir.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{root: dir}
}

// WriteBundle persists one page's evidence and returns its directory.
func (w *ArtifactWriter) WriteBundle(sessionID uuid.UUID, bundle *models.EvidenceBundle) (string, error) {
	dir := filepath.Join(w.root, sessionID.String(),
		fmt.Sprintf("%s_%s", bundle.PageType, bundle.Viewport))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifacts: mkdir %s: %w", dir, err)
	}

	if len(bundle.Screenshot) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "screenshot.png"), bundle.Screenshot, 0o644); err != nil {
			return "", fmt.Errorf("artifacts: write screenshot: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "visible.txt"), []byte(bundle.VisibleText), 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write text: %w", err)
	}

	features, err := json.MarshalIndent(bundle.Features, "", "  ")
	if err != nil {
		return "", fmt.Errorf("artifacts: marshal features: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "features.json"), features, 0o644); err != nil {
		return "", fmt.Errorf("artifacts: write features: %w", err)
	}

	if len(bundle.HTMLGz) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "page.html.gz"), bundle.HTMLGz, 0o644); err != nil {
			return "", fmt.Errorf("artifacts: write html: %w", err)
		}
	}
	return dir, nil
}

// SessionDir returns the artifact directory for a session.
func (w *ArtifactWriter) SessionDir(sessionID uuid.UUID) string {
	return filepath.Join(w.root, sessionID.String())
}
