package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-hangar/internal/models"
)

func TestConvertToSlug(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Empty string", "", ""},
		{"Simple title", "Space Haven", "space_haven"},
		{"With colon", "Mewnbase: Redux", "mewnbase-redux"},
		{"With numbers", "Factory V1.5", "factory_v1.5"},
		{"Mixed case", "HyperRogue Classic", "hyperrogue_classic"},
		{"Invalid characters", "A*Game?With\"Weird!Chars", "agamewithweirdchars"},
		{"Repeated dashes", "double--dash", "double-dash"},
		{"Repeated underscores", "double__underscore", "double_underscore"},
		{"Leading and trailing spaces", "  Leading Trailing  ", "leading_trailing"},
		{"Leading and trailing separators", "-_Leading Trailing_-_", "leading_trailing"},
		{"Already valid", "valid-slug_1.0", "valid-slug_1.0"},
		{"All invalid", "!@#$%^&*()+", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToSlug(tt.input)
			if got != tt.want {
				t.Errorf("ConvertToSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes uint64
		want  string
	}{
		{"Zero bytes", 0, "0B"},
		{"Bytes", 500, "500.00B"},
		{"Kilobytes", 1024, "1.00KB"},
		{"Kilobytes fractional", 1536, "1.50KB"},
		{"Megabytes", 1024 * 1024, "1.00MB"},
		{"Gigabytes", 1024 * 1024 * 1024, "1.00GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00TB"},
		{"Large Terabytes", 1536 * 1024 * 1024 * 1024, "1.50TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToSize(tt.bytes)
			if got != tt.want {
				t.Errorf("BytesToSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestCheckHash(t *testing.T) {
	tempDir := t.TempDir()

	testContent := []byte("this is test content for hashing")
	expectedBlake3 := "B3C004D66E2A918576F44266A57BBCF854B79ED13D068A6A0EF5156C3CF41B74"
	expectedCRC32 := "4c6b15d9"
	expectedSHA256 := "e41e304c0e53a1561616a4871f64707701a38342665599694bb3774519a867e7"

	testFilePath := filepath.Join(tempDir, "artifact.bin")
	if err := os.WriteFile(testFilePath, testContent, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name       string
		filepath   string
		hashes     models.Hashes
		wantResult bool
	}{
		{
			name:       "No file exists",
			filepath:   filepath.Join(tempDir, "nonexistent.bin"),
			hashes:     models.Hashes{BLAKE3: expectedBlake3},
			wantResult: false,
		},
		{
			name:       "BLAKE3 match",
			filepath:   testFilePath,
			hashes:     models.Hashes{BLAKE3: expectedBlake3},
			wantResult: true,
		},
		{
			name:       "CRC32 match, lowercase",
			filepath:   testFilePath,
			hashes:     models.Hashes{CRC32: expectedCRC32},
			wantResult: true,
		},
		{
			name:       "SHA256 match, uppercase from server",
			filepath:   testFilePath,
			hashes:     models.Hashes{SHA256: strings.ToUpper(expectedSHA256)},
			wantResult: true,
		},
		{
			name:       "One mismatch, one match",
			filepath:   testFilePath,
			hashes:     models.Hashes{BLAKE3: "incorrecthash", CRC32: expectedCRC32},
			wantResult: true,
		},
		{
			name:       "All hashes mismatch",
			filepath:   testFilePath,
			hashes:     models.Hashes{BLAKE3: "incorrect1", CRC32: "incorrect2", SHA256: "incorrect3"},
			wantResult: false,
		},
		{
			name:       "No hashes provided",
			filepath:   testFilePath,
			hashes:     models.Hashes{},
			wantResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotResult := CheckHash(tt.filepath, tt.hashes)
			if gotResult != tt.wantResult {
				t.Errorf("CheckHash(%q, %+v) = %v, want %v", tt.filepath, tt.hashes, gotResult, tt.wantResult)
			}
		})
	}
}

func TestListFilesRelative(t *testing.T) {
	root := t.TempDir()

	mustWrite := func(rel string) {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	mustWrite("game.exe")
	mustWrite("data/level1.dat")
	mustWrite("data/level2.dat")
	mustWrite(".hidden")
	mustWrite(".DS_Store")
	mustWrite("data/Thumbs.db")
	mustWrite("partial.tmp")
	if err := os.MkdirAll(filepath.Join(root, "emptydir"), 0700); err != nil {
		t.Fatalf("mkdir emptydir: %v", err)
	}

	got, err := ListFilesRelative(root)
	if err != nil {
		t.Fatalf("ListFilesRelative: %v", err)
	}

	want := []string{".hidden", "data/level1.dat", "data/level2.dat", "game.exe"}
	if len(got) != len(want) {
		t.Fatalf("ListFilesRelative = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListFilesRelative[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIgnored(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".DS_Store", true},
		{"Thumbs.db", true},
		{".itch-staging-lock", true},
		{"download.tmp", true},
		{"game.exe", false},
		{".hidden", false},
	}
	for _, tt := range tests {
		if got := Ignored(tt.name); got != tt.want {
			t.Errorf("Ignored(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWipeDir(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "staging")
	if err := os.MkdirAll(filepath.Join(target, "nested"), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(target, "nested", "file"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !WipeDir(target) {
		t.Fatal("WipeDir returned false for existing directory")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("directory still exists after WipeDir")
	}

	// Wiping an already-absent directory succeeds (RemoveAll semantics).
	if !WipeDir(target) {
		t.Error("WipeDir returned false for absent directory")
	}
	if WipeDir("") {
		t.Error("WipeDir(\"\") should return false")
	}
}

func TestCheckAndMakeDir(t *testing.T) {
	base := t.TempDir()

	if !CheckAndMakeDir(filepath.Join(base, "nested", "install", "dir")) {
		t.Error("CheckAndMakeDir failed for nested path")
	}
	if !CheckAndMakeDir(filepath.Join(base, "nested")) {
		t.Error("CheckAndMakeDir failed for already existing directory")
	}

	filePath := filepath.Join(base, "a_file")
	if err := os.WriteFile(filePath, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if CheckAndMakeDir(filePath) {
		t.Error("CheckAndMakeDir should fail when the path is a file")
	}
}
