package installer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// sniffChunkSize bounds how much of the artifact we read for sniffing.
// NSIS and Inno markers live early in the PE file.
const sniffChunkSize = 64 * 1024

var (
	magicZip      = []byte{0x50, 0x4b, 0x03, 0x04}
	magicGzip     = []byte{0x1f, 0x8b}
	magic7z       = []byte{0x37, 0x7a, 0xbc, 0xaf, 0x27, 0x1c}
	magicCompound = []byte{0xd0, 0xcf, 0x11, 0xe0} // MSI compound document
	magicPE       = []byte{0x4d, 0x5a}             // "MZ"
	magicELF      = []byte{0x7f, 0x45, 0x4c, 0x46}
)

// sniffKind inspects the artifact's content (and, for DMG, its extension)
// to classify it. Returns false when nothing recognizable was found.
func sniffKind(path string, logger *log.Entry) (Kind, bool) {
	if strings.EqualFold(filepath.Ext(path), ".dmg") {
		return KindDMG, true
	}

	f, err := os.Open(path)
	if err != nil {
		logger.WithError(err).Warnf("Could not open %s for sniffing", path)
		return "", false
	}
	defer f.Close()

	chunk := make([]byte, sniffChunkSize)
	n, err := f.Read(chunk)
	if err != nil && n == 0 {
		logger.WithError(err).Warnf("Could not read %s for sniffing", path)
		return "", false
	}
	chunk = chunk[:n]

	switch {
	case bytes.HasPrefix(chunk, magicZip),
		bytes.HasPrefix(chunk, magicGzip),
		bytes.HasPrefix(chunk, magic7z):
		return KindArchive, true
	case bytes.HasPrefix(chunk, magicCompound):
		return KindMSI, true
	case bytes.HasPrefix(chunk, magicELF):
		return KindNaked, true
	case bytes.HasPrefix(chunk, magicPE):
		// Windows executables are either self-extracting installers or a
		// game shipped as a bare .exe.
		if bytes.Contains(chunk, []byte("Nullsoft")) {
			return KindNSIS, true
		}
		if bytes.Contains(chunk, []byte("Inno Setup")) {
			return KindInno, true
		}
		return KindNaked, true
	}

	return "", false
}
