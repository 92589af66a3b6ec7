package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-hangar/internal/models"
	"go-hangar/internal/receipt"
	"go-hangar/internal/taskctx"
)

// writeTree populates dir with the given relative-path -> content mapping.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0700))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

// readTree lists dir's files (receipt artifacts excluded) with contents.
func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ".itch/receipt.json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestDeployFreshInstall(t *testing.T) {
	stage := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")

	writeTree(t, stage, map[string]string{
		"game.exe":        "binary",
		"data/level1.dat": "level one",
	})

	res, err := Deploy(Params{
		StagePath: stage,
		DestPath:  dest,
		Cave:      &models.Cave{ID: "cave-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"data/level1.dat", "game.exe"}, res.Files)

	assert.Equal(t, map[string]string{
		"game.exe":        "binary",
		"data/level1.dat": "level one",
	}, readTree(t, dest))

	rec, err := receipt.Read(dest)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, res.Files, rec.Files)
	assert.Equal(t, "cave-1", rec.Cave.ID)
}

func TestDeployRemovesOrphans(t *testing.T) {
	stage1 := t.TempDir()
	stage2 := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")

	// First deploy ships {a, b, c}; the update ships {b, c, d}.
	writeTree(t, stage1, map[string]string{"a": "1", "b": "2", "c": "3"})
	writeTree(t, stage2, map[string]string{"b": "2", "c": "3x", "d": "4"})

	_, err := Deploy(Params{StagePath: stage1, DestPath: dest})
	require.NoError(t, err)

	_, err = Deploy(Params{StagePath: stage2, DestPath: dest})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"b": "2", "c": "3x", "d": "4"}, readTree(t, dest))
}

func TestDeployPrunesEmptyDirs(t *testing.T) {
	stage1 := t.TempDir()
	stage2 := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")

	writeTree(t, stage1, map[string]string{"old/deep/file.dat": "x", "game.exe": "bin"})
	writeTree(t, stage2, map[string]string{"game.exe": "bin"})

	_, err := Deploy(Params{StagePath: stage1, DestPath: dest})
	require.NoError(t, err)
	_, err = Deploy(Params{StagePath: stage2, DestPath: dest})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dest, "old"))
	assert.True(t, os.IsNotExist(err), "emptied directory chain should be pruned")
}

func TestDeployIdempotent(t *testing.T) {
	stage := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")

	writeTree(t, stage, map[string]string{"game.exe": "bin", "readme.txt": "hi"})

	first, err := Deploy(Params{StagePath: stage, DestPath: dest})
	require.NoError(t, err)
	second, err := Deploy(Params{StagePath: stage, DestPath: dest})
	require.NoError(t, err)

	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, map[string]string{"game.exe": "bin", "readme.txt": "hi"}, readTree(t, dest))
}

func TestDeployFallsBackToListingWithoutReceipt(t *testing.T) {
	stage := t.TempDir()
	dest := t.TempDir()

	// A previous deploy whose receipt was lost: the destination itself is
	// the only record of what existed.
	writeTree(t, dest, map[string]string{"stale.dat": "old", "keep.dat": "old"})
	writeTree(t, stage, map[string]string{"keep.dat": "new"})

	_, err := Deploy(Params{StagePath: stage, DestPath: dest})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"keep.dat": "new"}, readTree(t, dest))
}

func TestDeployIgnoresCorruptReceipt(t *testing.T) {
	stage := t.TempDir()
	dest := t.TempDir()

	writeTree(t, dest, map[string]string{"stale.dat": "old"})
	require.NoError(t, os.MkdirAll(filepath.Join(dest, ".itch"), 0700))
	require.NoError(t, os.WriteFile(receipt.Path(dest), []byte("garbage"), 0644))

	writeTree(t, stage, map[string]string{"fresh.dat": "new"})

	_, err := Deploy(Params{StagePath: stage, DestPath: dest})
	require.NoError(t, err)

	// The corrupt receipt degraded to a listing; the stale file is gone and
	// a valid receipt took its place.
	assert.Equal(t, map[string]string{"fresh.dat": "new"}, readTree(t, dest))
	rec, err := receipt.Read(dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh.dat"}, rec.Files)
}

func TestDeploySingleFileHook(t *testing.T) {
	t.Run("hook deploys", func(t *testing.T) {
		stage := t.TempDir()
		dest := filepath.Join(t.TempDir(), "install")
		writeTree(t, stage, map[string]string{"only.bin": "x"})

		var offered string
		res, err := Deploy(Params{
			StagePath: stage,
			DestPath:  dest,
			OnSingle: func(path string) (SingleResult, error) {
				offered = path
				return SingleResult{Deployed: true}, nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(stage, "only.bin"), offered)
		assert.Equal(t, []string{"only.bin"}, res.Files)

		// The engine short-circuited: nothing was merged.
		_, err = os.Stat(dest)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("hook declines", func(t *testing.T) {
		stage := t.TempDir()
		dest := filepath.Join(t.TempDir(), "install")
		writeTree(t, stage, map[string]string{"only.bin": "x"})

		_, err := Deploy(Params{
			StagePath: stage,
			DestPath:  dest,
			OnSingle: func(string) (SingleResult, error) {
				return SingleResult{}, nil
			},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"only.bin": "x"}, readTree(t, dest))
	})

	t.Run("hook error aborts", func(t *testing.T) {
		stage := t.TempDir()
		dest := filepath.Join(t.TempDir(), "install")
		writeTree(t, stage, map[string]string{"only.bin": "x"})

		hookErr := errors.New("missing runtime")
		_, err := Deploy(Params{
			StagePath: stage,
			DestPath:  dest,
			OnSingle: func(string) (SingleResult, error) {
				return SingleResult{}, hookErr
			},
		})
		require.ErrorIs(t, err, hookErr)
		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr), "aborted deploy must not touch the destination")
	})

	t.Run("hook skipped for multiple files", func(t *testing.T) {
		stage := t.TempDir()
		dest := filepath.Join(t.TempDir(), "install")
		writeTree(t, stage, map[string]string{"a.bin": "x", "b.bin": "y"})

		called := false
		_, err := Deploy(Params{
			StagePath: stage,
			DestPath:  dest,
			OnSingle: func(string) (SingleResult, error) {
				called = true
				return SingleResult{}, nil
			},
		})
		require.NoError(t, err)
		assert.False(t, called)
	})
}

func TestDeployCancellation(t *testing.T) {
	stage := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")
	writeTree(t, stage, map[string]string{"a": "1", "b": "2"})

	task := taskctx.New(context.Background(), "task-1", nil)
	task.CancelGracefully()

	_, err := Deploy(Params{StagePath: stage, DestPath: dest, Task: task})
	require.Error(t, err)
	assert.True(t, taskctx.IsCancelled(err))

	// No receipt was written: the deploy never completed.
	rec, rerr := receipt.Read(dest)
	require.NoError(t, rerr)
	assert.Nil(t, rec)
}

func TestDeployReportsProgress(t *testing.T) {
	stage := t.TempDir()
	dest := filepath.Join(t.TempDir(), "install")
	writeTree(t, stage, map[string]string{"a": "aaaa", "b": "bbbb"})

	var samples []taskctx.Progress
	_, err := Deploy(Params{
		StagePath: stage,
		DestPath:  dest,
		OnProgress: func(p taskctx.Progress) {
			samples = append(samples, p)
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, samples)
	assert.InDelta(t, 1.0, samples[len(samples)-1].Progress, 1e-9, "final sample must report completion")
}

func TestPreviousSetFallsBackOnUnreadableReceipt(t *testing.T) {
	dest := t.TempDir()
	writeTree(t, dest, map[string]string{
		"old.txt":       "previous deploy",
		"data/more.dat": "previous deploy",
	})
	// A directory at the receipt path makes the read fail with something
	// other than not-exist.
	require.NoError(t, os.MkdirAll(receipt.Path(dest), 0700))

	logger := log.NewEntry(log.StandardLogger())
	previous, err := previousFileSet(dest, logger)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"old.txt", "data/more.dat"}, previous)
}
