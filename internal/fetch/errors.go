package fetch

import (
	"fmt"
	"strings"
)

// FailureKind classifies why fetching a package failed.
type FailureKind string

const (
	// FailInvalidSource means the declaration's source cannot be fetched:
	// malformed slug, bad sparse path, missing local directory, or a
	// declaration kind the fetcher does not serve.
	FailInvalidSource FailureKind = "invalid_source"
	// FailInvalidRepo means the clone destination collided with an
	// existing checkout in the same temp root.
	FailInvalidRepo FailureKind = "invalid_repo"
	// FailIO is a filesystem failure unrelated to git itself.
	FailIO FailureKind = "io_error"
	// FailGit means a git subprocess exited non-zero.
	FailGit FailureKind = "git_error"
)

// Error is a structured fetch failure. It always names the origin alias
// and the source string so the user can find the offending declaration.
type Error struct {
	Failure FailureKind
	Alias   string
	Source  string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("fetching %q (%s): %s", e.Alias, e.Source, e.Failure)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// GitClass classifies a git subprocess failure from its output.
type GitClass int

const (
	GitUnknown GitClass = iota
	GitAuth
	GitRepoNotFound
	GitNetwork
	GitRefNotFound
	GitTimeout
)

// String returns a human-readable label for the class.
func (c GitClass) String() string {
	switch c {
	case GitAuth:
		return "authentication required"
	case GitRepoNotFound:
		return "repository not found"
	case GitNetwork:
		return "network error"
	case GitRefNotFound:
		return "ref not found"
	case GitTimeout:
		return "timeout"
	default:
		return "git error"
	}
}

// GitError wraps raw git output with a classification and actionable hints.
type GitError struct {
	Class     GitClass
	URL       string
	Args      []string
	RawOutput string
	Hints     []string
}

// Error implements the error interface.
func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed (%s): %s", firstArg(e.Args), e.Class, e.firstLine())
}

func firstArg(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return "command"
}

// firstLine returns the first non-boilerplate output line for a concise
// message.
func (e *GitError) firstLine() string {
	for _, line := range strings.Split(e.RawOutput, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Cloning into") {
			return line
		}
	}
	if out := strings.TrimSpace(e.RawOutput); out != "" {
		return out
	}
	return "no output"
}

// classifyGitError examines git output and returns a structured GitError.
func classifyGitError(url string, args []string, rawOutput string) *GitError {
	class := classifyGitOutput(rawOutput)
	return &GitError{
		Class:     class,
		URL:       url,
		Args:      args,
		RawOutput: strings.TrimSpace(rawOutput),
		Hints:     hintsForGitError(class, url),
	}
}

// classifyGitOutput pattern-matches git stderr to determine the class.
func classifyGitOutput(output string) GitClass {
	lower := strings.ToLower(output)

	// Timeout is set by us, not git, so check it first.
	if strings.Contains(lower, "timed out") || strings.Contains(lower, "context deadline exceeded") {
		return GitTimeout
	}

	if strings.Contains(lower, "permission denied (publickey)") ||
		strings.Contains(lower, "could not read username") ||
		strings.Contains(lower, "could not read password") ||
		strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "host key verification failed") {
		return GitAuth
	}

	if strings.Contains(lower, "couldn't find remote ref") ||
		strings.Contains(lower, "unknown revision") ||
		strings.Contains(lower, "pathspec") ||
		strings.Contains(lower, "reference is not a tree") {
		return GitRefNotFound
	}

	if strings.Contains(lower, "repository not found") ||
		strings.Contains(lower, "does not appear to be a git repository") ||
		strings.Contains(lower, "project not found") ||
		strings.Contains(lower, "not found") {
		return GitRepoNotFound
	}

	if strings.Contains(lower, "could not resolve host") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection timed out") ||
		strings.Contains(lower, "network is unreachable") ||
		strings.Contains(lower, "no route to host") {
		return GitNetwork
	}

	return GitUnknown
}

// hintsForGitError returns actionable suggestions based on the class.
func hintsForGitError(class GitClass, url string) []string {
	switch class {
	case GitAuth:
		return []string{
			"Run `gh auth login` to authenticate with GitHub",
			"Or configure a git credential helper: `git config --global credential.helper store`",
		}
	case GitRepoNotFound:
		return []string{
			"Verify the repository URL is correct",
			"Ensure you have access to this repository (it may be private)",
		}
	case GitRefNotFound:
		return []string{
			"Verify the tag, branch, or commit exists in the remote repository",
		}
	case GitNetwork:
		return []string{
			"Check your internet connection",
			"Verify the hostname in the URL is correct",
		}
	case GitTimeout:
		return []string{
			"The git operation timed out; try again or check connectivity to " + url,
		}
	default:
		return []string{
			"Try the command manually to diagnose: git clone " + url,
		}
	}
}
