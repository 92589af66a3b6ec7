// Package receipt reads and writes the per-install-folder manifest that
// records which files the last successful deploy placed there.
package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go-hangar/internal/models"

	log "github.com/sirupsen/logrus"
)

// receiptDir and receiptName locate the manifest inside an install folder.
const (
	receiptDir  = ".itch"
	receiptName = "receipt.json"
)

// Receipt is the manifest of files present in an install directory as of
// the last successful deploy.
type Receipt struct {
	Cave  *models.Cave `json:"cave,omitempty"`
	Files []string     `json:"files"`
	// InstallerKind caches the sniffed installer kind so later operations
	// can skip re-sniffing the artifact.
	InstallerKind string `json:"installerKind,omitempty"`
}

// Path returns the receipt location for an install destination.
func Path(dest string) string {
	return filepath.Join(dest, receiptDir, receiptName)
}

// Read loads the receipt for dest. A missing receipt is (nil, nil); a
// corrupt receipt is logged and also treated as absent, so callers fall
// back to listing the destination directly.
func Read(dest string) (*Receipt, error) {
	path := Path(dest)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading receipt %s: %w", path, err)
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		log.WithError(err).Warnf("Receipt %s is unparsable, treating as absent", path)
		return nil, nil
	}
	return &r, nil
}

// HasFiles reports whether the receipt carries a usable file list.
func (r *Receipt) HasFiles() bool {
	return r != nil && len(r.Files) > 0
}

// Write persists the receipt for dest atomically (temp file + rename), so
// an interrupted write never leaves a half-written manifest behind.
func Write(dest string, r *Receipt) error {
	dir := filepath.Join(dest, receiptDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating receipt directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling receipt for %s: %w", dest, err)
	}

	tempFile, err := os.CreateTemp(dir, receiptName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary receipt in %s: %w", dir, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temporary receipt %s: %w", tempPath, err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temporary receipt %s: %w", tempPath, err)
	}

	finalPath := Path(dest)
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming receipt into place at %s: %w", finalPath, err)
	}
	log.Debugf("Wrote receipt with %d files to %s", len(r.Files), finalPath)
	return nil
}
