package reviserepo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// bridgeTimeout bounds every shell-out below; the porcelain queries this
// bridge performs are all local and fast, unlike a clone/fetch.
const bridgeTimeout = 30 * time.Second

// VCSBridge is the external-collaborator boundary named in §1/§4.2: the
// only place the core spawns the VCS binary — diff-tree, hash-object,
// merge-file, config, log, the read-tree/write-tree/reset --patch steps
// behind `cut` and the staged tree, and the porcelain `add` invocations
// the CLI passes through Run. Refs are not updated through it; the
// repository handle writes them directly.
type VCSBridge struct {
	rootDir string
	bin     string
}

// NewVCSBridge returns a bridge that runs the VCS binary ("git" unless
// overridden) with rootDir as its working tree.
func NewVCSBridge(rootDir string) *VCSBridge {
	return &VCSBridge{rootDir: rootDir, bin: "git"}
}

func (b *VCSBridge) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, bridgeTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, b.bin, args...)
	cmd.Dir = b.rootDir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.WithField("args", args).Debug("reviserepo: vcs bridge invoke")
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, reviseerr.Wrap(reviseerr.VcsFailed, fmt.Sprintf("%s %s", b.bin, strings.Join(args, " ")), fmt.Errorf("%s", msg))
	}
	return stdout.Bytes(), nil
}

// DiffTreeStat produces a `diff-tree --stat`-style patch between two tree
// OIDs, used as editor-buffer trailing comment text (SPEC_FULL.md §4.3).
func (b *VCSBridge) DiffTreeStat(ctx context.Context, oldTree, newTree object.Hash) (string, error) {
	out, err := b.run(ctx, nil, "diff-tree", "--stat", string(oldTree), string(newTree))
	if err != nil {
		logrus.WithError(err).Debug("reviserepo: diff-tree --stat failed")
		return "", err
	}
	return string(out), nil
}

// DiffTreePatch produces a unified patch between two tree OIDs.
func (b *VCSBridge) DiffTreePatch(ctx context.Context, oldTree, newTree object.Hash) ([]byte, error) {
	return b.run(ctx, nil, "diff-tree", "-p", string(oldTree), string(newTree))
}

// HashObjectWrite persists data as a loose blob via `hash-object -w
// --stdin` and returns its OID (§4.2).
func (b *VCSBridge) HashObjectWrite(ctx context.Context, data []byte) (object.Hash, error) {
	out, err := b.run(ctx, data, "hash-object", "-w", "--stdin")
	if err != nil {
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(out))), nil
}

// MergeFile invokes `git merge-file` as the blob-level three-way merge
// driver (§4.5). Labels are the three sides' descriptions (a commit
// summary, not a filename, per spec: "labeled with the source commit's
// summary... so the user sees which patch failed"). Returns the merged
// bytes and whether the merge was clean.
func (b *VCSBridge) MergeFile(ctx context.Context, labels [3]string, current, base, other []byte, scratchDir string) (clean bool, merged []byte, err error) {
	currentPath := scratchDir + "/current"
	basePath := scratchDir + "/base"
	otherPath := scratchDir + "/other"

	if err := writeAll(currentPath, current); err != nil {
		return false, nil, err
	}
	if err := writeAll(basePath, base); err != nil {
		return false, nil, err
	}
	if err := writeAll(otherPath, other); err != nil {
		return false, nil, err
	}

	args := []string{
		"merge-file", "-q", "-p",
		"-L", labels[0], "-L", labels[1], "-L", labels[2],
		currentPath, basePath, otherPath,
	}
	out, runErr := b.run(ctx, nil, args...)
	if runErr == nil {
		return true, out, nil
	}
	// merge-file exits with the conflict count (>0) on a conflicted
	// merge; VcsFailed from run() doesn't distinguish that from a real
	// failure, so re-run with CombinedOutput semantics via exec directly
	// to inspect the exit code.
	return b.mergeFileConflicted(ctx, args)
}

func (b *VCSBridge) mergeFileConflicted(ctx context.Context, args []string) (bool, []byte, error) {
	cctx, cancel := context.WithTimeout(ctx, bridgeTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, b.bin, args...)
	cmd.Dir = b.rootDir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() > 0 {
		return false, stdout.Bytes(), nil
	}
	if err != nil {
		return false, nil, reviseerr.Wrap(reviseerr.VcsFailed, "git merge-file", err)
	}
	return true, stdout.Bytes(), nil
}

// ConfigGet reads a dotted config key via the VCS's own config plumbing.
// The second return value is false when the key is unset or the VCS
// binary is unavailable, in which case the caller falls through to
// .revise.toml or a hardcoded default (§4.2, §6).
func (b *VCSBridge) ConfigGet(key string) (string, bool) {
	out, err := b.run(context.Background(), nil, "config", "--get", key)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// LocalCommits lists the commits reachable from head but from none of the
// repository's remote-tracking refs, oldest first — the default rewrite
// range when the user gives no explicit target (SPEC_FULL.md §4
// supplement 1, grounded on `utils.py:local_commits`'s `git log --not
// --remotes` invocation).
func (b *VCSBridge) LocalCommits(ctx context.Context, head string) ([]object.Hash, error) {
	out, err := b.run(ctx, nil, "log", "--not", "--remotes", "--first-parent", "--format=%H", head)
	if err != nil {
		return nil, err
	}
	var commits []object.Hash
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		commits = append(commits, object.Hash(line))
	}
	// git log prints newest first; the range walk wants oldest first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
	return commits, nil
}

// ReadTree seeds indexFile with tree's contents via `read-tree`, the
// starting point for the `cut` step's temporary index (§4.7).
func (b *VCSBridge) ReadTree(ctx context.Context, indexFile string, tree object.Hash) error {
	cmd := exec.CommandContext(ctx, b.bin, "read-tree", string(tree))
	cmd.Dir = b.rootDir
	cmd.Env = append(cmd.Environ(), "GIT_INDEX_FILE="+indexFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return reviseerr.Wrap(reviseerr.VcsFailed, "git read-tree", fmt.Errorf("%s", strings.TrimSpace(stderr.String())))
	}
	return nil
}

// WriteTree serializes indexFile's current contents into a tree object
// via `write-tree` (§4.7 cut). An empty indexFile means "the repository's
// real staging area", used to capture the `index` step's tree (§4.7 step
// 3).
func (b *VCSBridge) WriteTree(ctx context.Context, indexFile string) (object.Hash, error) {
	cmd := exec.CommandContext(ctx, b.bin, "write-tree")
	cmd.Dir = b.rootDir
	if indexFile != "" {
		cmd.Env = append(cmd.Environ(), "GIT_INDEX_FILE="+indexFile)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", reviseerr.Wrap(reviseerr.VcsFailed, "git write-tree", fmt.Errorf("%s", strings.TrimSpace(stderr.String())))
	}
	return object.Hash(strings.TrimSpace(stdout.String())), nil
}

// Run exposes the bridge's generic invocation for the handful of
// porcelain commands the CLI shells out to directly (`add -u`, `add -p`)
// rather than adding a dedicated method per verb.
func (b *VCSBridge) Run(ctx context.Context, args ...string) ([]byte, error) {
	return b.run(ctx, nil, args...)
}

// StagedTree captures the repository's real staging area as a tree object,
// the `S` input named in §4.7 ("the staged-tree OID obtained from the VCS
// via write-tree equivalent").
func (b *VCSBridge) StagedTree(ctx context.Context) (object.Hash, error) {
	return b.WriteTree(ctx, "")
}

// AddPatch shells out to the interactive `reset --patch` equivalent used
// by the `cut` step to split a commit's diff (§4.7 cut, §6 non-goals:
// staging is always delegated to the external collaborator). target is
// the tree the interactive hunk selection resets indexFile towards.
func (b *VCSBridge) AddPatch(ctx context.Context, indexFile string, target object.Hash, pathspec ...string) error {
	args := append([]string{"reset", "--patch", string(target), "--"}, pathspec...)
	cmd := exec.CommandContext(ctx, b.bin, args...)
	cmd.Dir = b.rootDir
	cmd.Env = append(cmd.Environ(), "GIT_INDEX_FILE="+indexFile)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return reviseerr.Wrap(reviseerr.VcsFailed, "git reset --patch", err)
	}
	return nil
}
