package sync

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/skillkit/sk/internal/plan"
	"github.com/skillkit/sk/internal/skerr"
)

// installExcluded are entries never copied into an install target.
var installExcluded = map[string]bool{
	".git": true,
}

// installTasks executes a plan's install tasks in two phases: every managed
// target is removed before the first install is applied, so a failure
// partway through never leaves a previous run's tree sitting next to
// freshly installed ones. Returns the number of tasks applied.
func installTasks(tasks []plan.Task) (int, error) {
	for _, task := range tasks {
		if err := removeTarget(task.TargetPath); err != nil {
			return 0, err
		}
	}
	installed := 0
	for _, task := range tasks {
		if err := applyTask(task); err != nil {
			return installed, err
		}
		installed++
	}
	return installed, nil
}

// applyTask materializes one planned install. Local packages are linked so
// source edits reflect live; if the platform refuses the symlink the task
// degrades to a copy.
func applyTask(task plan.Task) error {
	if err := os.MkdirAll(filepath.Dir(task.TargetPath), 0o755); err != nil {
		return skerr.Wrap(skerr.KindIO, err, "creating skills directory")
	}

	if task.Link {
		if err := os.Symlink(task.SourcePath, task.TargetPath); err == nil {
			return nil
		}
		// Fall through to copy.
	}

	if err := copyDirectory(task.SourcePath, task.TargetPath); err != nil {
		return skerr.Wrap(skerr.KindIO, err, "installing %s", task.TargetName)
	}
	return nil
}

// removeTarget removes an install target, whether it is a directory or a
// symlink left by a previous run.
func removeTarget(path string) error {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return skerr.Wrap(skerr.KindIO, err, "inspecting %s", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return skerr.Wrap(skerr.KindIO, err, "removing %s", path)
	}
	return nil
}

// copyDirectory copies the contents of src to dst, excluding VCS metadata.
func copyDirectory(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if installExcluded[filepath.Base(path)] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		dstPath := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(dstPath, 0o755)
		}
		return copyFile(path, dstPath)
	})
}

// copyFile copies a single file from src to dst, preserving its mode.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer func() { _ = dstFile.Close() }()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// pathExists reports whether anything (file, dir, or dangling symlink)
// occupies path.
func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
