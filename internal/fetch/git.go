package fetch

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/skillkit/sk/internal/manifest"
)

const gitTimeout = 60 * time.Second

// deepenDepth is how much history a failed ref checkout fetches before the
// single retry. Bounded: there is exactly one deepen attempt per checkout.
const deepenDepth = 50

// runGit runs a git subcommand with a timeout, returning combined output.
// Prompting is disabled so a missing credential fails fast instead of
// hanging the sync.
func (f *Fetcher) runGit(ctx context.Context, url string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.CombinedOutput()
	if err != nil {
		out := string(output)
		if ctx.Err() == context.DeadlineExceeded {
			out += "\noperation timed out after " + f.timeout.String()
		}
		return out, classifyGitError(url, args, out)
	}
	return string(output), nil
}

// clone performs a shallow clone into dst. Sparse clones additionally skip
// blob download and start with an empty cone checkout.
func (f *Fetcher) clone(ctx context.Context, url, dst string, sparse bool) error {
	args := []string{"clone", "--depth", "1"}
	if sparse {
		args = append(args, "--filter=blob:none", "--sparse")
	}
	args = append(args, url, dst)
	_, err := f.runGit(ctx, url, args...)
	return err
}

// sparseCheckout materializes the given repo subpaths in a sparse clone.
func (f *Fetcher) sparseCheckout(ctx context.Context, url, repoDir string, paths []string) error {
	if _, err := f.runGit(ctx, url, "-C", repoDir, "sparse-checkout", "init", "--cone"); err != nil {
		return err
	}
	args := append([]string{"-C", repoDir, "sparse-checkout", "set"}, paths...)
	_, err := f.runGit(ctx, url, args...)
	return err
}

// checkoutRef fetches and checks out a declared ref in a shallow clone.
// When the shallow history does not contain the target (the usual cause of
// a checkout failure), it deepens once and retries.
func (f *Fetcher) checkoutRef(ctx context.Context, url, repoDir string, ref manifest.GitRef) error {
	var fetchArgs []string
	var checkoutTarget string

	switch ref.Kind {
	case manifest.RefTag:
		fetchArgs = []string{"-C", repoDir, "fetch", "--depth", "1", "origin", "tag", ref.Value}
		checkoutTarget = ref.Value
	case manifest.RefBranch:
		fetchArgs = []string{"-C", repoDir, "fetch", "--depth", "1", "origin", ref.Value}
		checkoutTarget = "FETCH_HEAD"
	case manifest.RefRev:
		fetchArgs = []string{"-C", repoDir, "fetch", "--depth", "1", "origin", ref.Value}
		checkoutTarget = ref.Value
	default:
		return nil
	}

	// Some servers reject fetching arbitrary revisions; the clone may
	// already contain the target, so a fetch failure for a rev is not
	// itself fatal.
	if _, err := f.runGit(ctx, url, fetchArgs...); err != nil && ref.Kind != manifest.RefRev {
		return err
	}

	if _, err := f.runGit(ctx, url, "-C", repoDir, "checkout", checkoutTarget); err == nil {
		return nil
	}

	// Deepen once and retry; shallow history often excludes the target.
	deepenArgs := []string{"-C", repoDir, "fetch", "--deepen", strconv.Itoa(deepenDepth), "origin"}
	if _, err := f.runGit(ctx, url, deepenArgs...); err != nil {
		return err
	}
	_, err := f.runGit(ctx, url, "-C", repoDir, "checkout", checkoutTarget)
	return err
}
