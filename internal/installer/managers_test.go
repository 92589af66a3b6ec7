package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-hangar/internal/helpers"
	"go-hangar/internal/models"
	"go-hangar/internal/receipt"
	"go-hangar/internal/wharf"
)

// unpackingFake scripts the subprocess side of an archive install: it
// "unpacks" the given files into the stage folder.
func unpackingFake(t *testing.T, files map[string]string) *wharf.Fake {
	t.Helper()
	return &wharf.Fake{
		OperationFunc: func(ctx context.Context, params wharf.OperationParams) (*wharf.OperationResult, error) {
			var names []string
			for rel, content := range files {
				full := filepath.Join(params.StageFolder, filepath.FromSlash(rel))
				require.NoError(t, os.MkdirAll(filepath.Dir(full), 0700))
				require.NoError(t, os.WriteFile(full, []byte(content), 0644))
				names = append(names, rel)
			}
			return &wharf.OperationResult{Files: names}, nil
		},
	}
}

func TestArchiveInstall(t *testing.T) {
	stage := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")

	client := unpackingFake(t, map[string]string{
		"game.exe":        "binary",
		"data/level1.dat": "level",
	})
	r := NewRegistry(client)

	res, err := r.Install(context.Background(), Opts{
		Kind:      KindArchive,
		StagePath: stage,
		DestPath:  dest,
		Cave:      &models.Cave{ID: "cave-1"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"game.exe", "data/level1.dat"}, res.Files)

	// The deploy engine moved the unpacked tree into the destination and
	// cached the kind in the receipt.
	data, err := os.ReadFile(filepath.Join(dest, "game.exe"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	require.NotNil(t, res.Receipt)
	assert.Equal(t, "archive", res.Receipt.InstallerKind)
}

func TestNakedInstall(t *testing.T) {
	artifactDir := t.TempDir()
	artifact := filepath.Join(artifactDir, "game.exe")
	require.NoError(t, os.WriteFile(artifact, []byte("binary"), 0755))

	stage := filepath.Join(t.TempDir(), "stage")
	dest := filepath.Join(t.TempDir(), "install")

	r := NewRegistry(&wharf.Fake{})
	res, err := r.Install(context.Background(), Opts{
		Kind:         KindNaked,
		ArtifactPath: artifact,
		StagePath:    stage,
		DestPath:     dest,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"game.exe"}, res.Files)

	data, err := os.ReadFile(filepath.Join(dest, "game.exe"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	rec, err := receipt.Read(dest)
	require.NoError(t, err)
	assert.Equal(t, "naked", rec.InstallerKind)
}

func TestUninstallByReceipt(t *testing.T) {
	dest := t.TempDir()

	// A deployed game plus a user save file we did not put there.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "game.exe"), []byte("binary"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "data"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "data", "level1.dat"), []byte("level"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "save.dat"), []byte("progress"), 0644))
	require.NoError(t, receipt.Write(dest, &receipt.Receipt{
		Files:         []string{"game.exe", "data/level1.dat"},
		InstallerKind: "naked",
	}))

	r := NewRegistry(&wharf.Fake{})
	require.NoError(t, r.Uninstall(context.Background(), Opts{DestPath: dest}))

	_, err := os.Stat(filepath.Join(dest, "game.exe"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dest, ".itch"))
	assert.True(t, os.IsNotExist(err))

	// The save file survives, and so therefore does the folder.
	_, err = os.Stat(filepath.Join(dest, "save.dat"))
	assert.NoError(t, err)
}

func TestUninstallWithoutReceipt(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "game.exe"), []byte("binary"), 0644))

	r := NewRegistry(&wharf.Fake{})
	require.NoError(t, r.Uninstall(context.Background(), Opts{DestPath: dest}))

	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "without a receipt the whole folder is removed")
}

func TestUninstallRemovesEmptiedFolder(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "game.exe"), []byte("binary"), 0644))
	require.NoError(t, receipt.Write(dest, &receipt.Receipt{
		Files:         []string{"game.exe"},
		InstallerKind: "naked",
	}))

	r := NewRegistry(&wharf.Fake{})
	require.NoError(t, r.Uninstall(context.Background(), Opts{DestPath: dest}))

	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err), "a fully-owned folder is removed outright")
}

func TestPackageUninstallDelegatesToSubprocess(t *testing.T) {
	var got wharf.OperationParams
	client := &wharf.Fake{
		OperationFunc: func(ctx context.Context, params wharf.OperationParams) (*wharf.OperationResult, error) {
			got = params
			return &wharf.OperationResult{}, nil
		},
	}
	r := NewRegistry(client)

	dest := t.TempDir()
	require.NoError(t, r.Uninstall(context.Background(), Opts{
		Kind:     KindMSI,
		DestPath: dest,
	}))
	assert.Equal(t, wharf.OpUninstall, got.Type)
	assert.Equal(t, dest, got.InstallFolder)
}

func TestArchiveDelegatesWrappedInstaller(t *testing.T) {
	stage := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")

	setupBytes := append([]byte{0x4d, 0x5a}, []byte(" Nullsoft Install System ")...)

	var ops []wharf.OperationParams
	client := &wharf.Fake{
		OperationFunc: func(ctx context.Context, params wharf.OperationParams) (*wharf.OperationResult, error) {
			ops = append(ops, params)
			if len(ops) == 1 {
				// Unpack: the archive held a lone installer binary.
				full := filepath.Join(params.StageFolder, "setup.exe")
				require.NoError(t, os.WriteFile(full, setupBytes, 0644))
				return &wharf.OperationResult{Files: []string{"setup.exe"}}, nil
			}
			// The wrapped installer is driven as a package install.
			return &wharf.OperationResult{Files: []string{"game.exe", "data/level1.dat"}}, nil
		},
	}

	r := NewRegistry(client)
	res, err := r.Install(context.Background(), Opts{
		Kind:      KindArchive,
		StagePath: stage,
		DestPath:  dest,
		Cave:      &models.Cave{ID: "cave-1"},
	})
	require.NoError(t, err)

	require.Len(t, ops, 2)
	assert.Equal(t, wharf.OpInstall, ops[1].Type)
	assert.Equal(t, filepath.Join(stage, "setup.exe"), ops[1].ArtifactPath)

	// The result reflects what the package install deployed, not the
	// archive's single member, and the receipt records the real kind.
	assert.ElementsMatch(t, []string{"game.exe", "data/level1.dat"}, res.Files)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, "nsis", res.Receipt.InstallerKind)

	// The installer binary itself never lands in the destination.
	_, statErr := os.Stat(filepath.Join(dest, "setup.exe"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInstallVerifiesArtifactHashes(t *testing.T) {
	content := []byte("this is test content for hashing")

	t.Run("matching hash proceeds", func(t *testing.T) {
		artifact := filepath.Join(t.TempDir(), "game.bin")
		require.NoError(t, os.WriteFile(artifact, content, 0755))

		r := NewRegistry(&wharf.Fake{})
		res, err := r.Install(context.Background(), Opts{
			Kind:         KindNaked,
			ArtifactPath: artifact,
			StagePath:    filepath.Join(t.TempDir(), "stage"),
			DestPath:     filepath.Join(t.TempDir(), "install"),
			Upload: &models.Upload{
				Filename: "game.bin",
				Hashes:   models.Hashes{SHA256: "e41e304c0e53a1561616a4871f64707701a38342665599694bb3774519a867e7"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"game.bin"}, res.Files)
	})

	t.Run("mismatch aborts before any install work", func(t *testing.T) {
		artifact := filepath.Join(t.TempDir(), "game.bin")
		require.NoError(t, os.WriteFile(artifact, content, 0755))
		dest := filepath.Join(t.TempDir(), "install")

		r := NewRegistry(&wharf.Fake{})
		_, err := r.Install(context.Background(), Opts{
			Kind:         KindNaked,
			ArtifactPath: artifact,
			StagePath:    filepath.Join(t.TempDir(), "stage"),
			DestPath:     dest,
			Upload: &models.Upload{
				Filename: "game.bin",
				Hashes:   models.Hashes{SHA256: "0000000000000000000000000000000000000000000000000000000000000000"},
			},
		})
		require.ErrorIs(t, err, helpers.ErrHashMismatch)

		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("no published hashes skips verification", func(t *testing.T) {
		artifact := filepath.Join(t.TempDir(), "game.bin")
		require.NoError(t, os.WriteFile(artifact, content, 0755))

		r := NewRegistry(&wharf.Fake{})
		_, err := r.Install(context.Background(), Opts{
			Kind:         KindNaked,
			ArtifactPath: artifact,
			StagePath:    filepath.Join(t.TempDir(), "stage"),
			DestPath:     filepath.Join(t.TempDir(), "install"),
			Upload:       &models.Upload{Filename: "game.bin"},
		})
		require.NoError(t, err)
	})
}
