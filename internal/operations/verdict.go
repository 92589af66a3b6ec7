package operations

import (
	"os"
	"path/filepath"
	"strings"

	"go-hangar/internal/models"
)

// sniffVerdict scans freshly deployed files for runnable candidates. This
// is a lightweight configure pass; the launch subsystem may refine it.
func sniffVerdict(destPath string, files []string) *models.Verdict {
	verdict := &models.Verdict{BasePath: destPath}

	for _, rel := range files {
		full := filepath.Join(destPath, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		verdict.TotalSize += info.Size()

		if flavor, ok := executableFlavor(rel, info.Mode()); ok {
			verdict.Candidates = append(verdict.Candidates, models.Candidate{
				Path:   rel,
				Flavor: flavor,
				Size:   info.Size(),
			})
		}
	}
	return verdict
}

func executableFlavor(rel string, mode os.FileMode) (string, bool) {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".exe":
		return "windows", true
	case ".app":
		return "macos", true
	case ".sh":
		return "script", true
	case ".jar":
		return "jar", true
	case ".html":
		return "html", true
	}
	if mode.Perm()&0111 != 0 && filepath.Ext(rel) == "" {
		return "native", true
	}
	return "", false
}

// deployedSize sums the on-disk size of the deployed file set.
func deployedSize(destPath string, files []string) int64 {
	var total int64
	for _, rel := range files {
		info, err := os.Stat(filepath.Join(destPath, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total
}
