package helpers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-hangar/internal/models"

	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"
)

// ErrHashMismatch reports a file whose content matches none of the hashes
// published for it.
var ErrHashMismatch = errors.New("file does not match any published hash")

// CheckHash verifies a file against provided hashes (BLAKE3, CRC32, SHA256).
// It returns true if any of the provided hashes match.
func CheckHash(filepath string, hashes models.Hashes) bool {
	if _, err := os.Stat(filepath); err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("Error stating file %s during hash check", filepath)
		}
		return false
	}

	file, err := os.ReadFile(filepath)
	if err != nil {
		log.WithError(err).Errorf("Error reading file %s for hash check", filepath)
		return false
	}

	if hashes.BLAKE3 != "" {
		blake3Hash := blake3.Sum256(file)
		calculated := strings.ToUpper(hex.EncodeToString(blake3Hash[:]))
		expected := strings.ToUpper(strings.TrimSpace(hashes.BLAKE3))
		if calculated == expected {
			log.WithField("hash", "BLAKE3").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	if hashes.CRC32 != "" {
		calculated := fmt.Sprintf("%x", crc32.ChecksumIEEE(file))
		expected := strings.ToLower(strings.TrimSpace(hashes.CRC32))
		if calculated == expected {
			log.WithField("hash", "CRC32").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	if hashes.SHA256 != "" {
		sum := sha256.Sum256(file)
		calculated := hex.EncodeToString(sum[:])
		expected := strings.ToLower(strings.TrimSpace(hashes.SHA256))
		if calculated == expected {
			log.WithField("hash", "SHA256").Debugf("Hash match for %s", filepath)
			return true
		}
	}

	return false
}

// ignoredNames are scratch artifacts that never count as deployed content.
var ignoredNames = map[string]bool{
	".DS_Store":          true,
	"Thumbs.db":          true,
	".itch-staging-lock": true,
}

// Ignored reports whether a file name is excluded from file listings.
func Ignored(name string) bool {
	return ignoredNames[name] || strings.HasSuffix(name, ".tmp")
}

// ListFilesRelative walks root recursively and returns every regular file
// as a slash-separated path relative to root, dotfiles included, sorted.
// Scratch artifacts (see Ignored) are skipped.
func ListFilesRelative(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if Ignored(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing files under %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// BytesToSize converts a byte count into a human-readable string.
func BytesToSize(bytes uint64) string {
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	if bytes == 0 {
		return "0B"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}
	return fmt.Sprintf("%.2f%s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}

// ConvertToSlug converts a string into a filesystem-friendly slug, used
// for naming install folders.
func ConvertToSlug(str string) string {
	str = strings.ReplaceAll(str, " ", "_")
	str = strings.ReplaceAll(str, ":", "-")
	str = strings.ToLower(str)

	allowedChars := "0123456789abcdefghijklmnopqrstuvwxyz._-"

	var filtered strings.Builder
	for _, ch := range str {
		if strings.ContainsRune(allowedChars, ch) {
			filtered.WriteRune(ch)
		}
	}
	str = filtered.String()

	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "-")
	}
	for strings.Contains(str, "__") {
		str = strings.ReplaceAll(str, "__", "_")
	}
	str = strings.ReplaceAll(str, "-_", "-")
	str = strings.ReplaceAll(str, "_-", "-")
	str = strings.Trim(str, "_-")

	return str
}

// CheckAndMakeDir ensures a directory exists, creating it if necessary.
func CheckAndMakeDir(dir string) bool {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		log.WithError(err).Errorf("Error creating directory %s", dir)
		return false
	}
	return true
}

// WipeDir removes a directory tree, logging but tolerating failure.
// Returns true on success.
func WipeDir(dir string) bool {
	if dir == "" {
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		log.WithError(err).Warnf("Error wiping directory %s", dir)
		return false
	}
	return true
}
