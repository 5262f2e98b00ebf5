// Package buildinfo reports which source revision the running tool was
// started from. Used for the startup log line only.
package buildinfo

import (
	"github.com/go-git/go-git/v5"
)

// Revision returns the short hash of the repository HEAD containing dir,
// with a "-dirty" suffix when the worktree has local modifications.
// Returns "unknown" when dir is not inside a git repository.
func Revision(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "unknown"
	}
	head, err := repo.Head()
	if err != nil {
		return "unknown"
	}
	rev := head.Hash().String()[:8]

	wt, err := repo.Worktree()
	if err != nil {
		return rev
	}
	status, err := wt.Status()
	if err != nil {
		return rev
	}
	if !status.IsClean() {
		rev += "-dirty"
	}
	return rev
}
