// Package reviserepo implements the repository handle (§4.2): locating
// the VCS directories, reading/writing refs, reading config, spawning the
// VCS binary for the handful of plumbing queries the rewrite engine needs,
// and managing scratch directories and editor invocation. Everything else
// about the working tree and staging area is out of scope (§1 Non-goals).
package reviserepo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/objectstore"
)

// Repo is an opened repository handle. It lives for the process (§3
// Lifecycles) and owns the one objectstore.Store instance the rewrite
// engine reads and writes through.
type Repo struct {
	RootDir   string // working directory root (may differ from GitDir for worktrees)
	GitDir    string // the VCS's own directory, e.g. ".git"
	CommonDir string // shared directory for worktrees; equals GitDir outside one

	Store *objectstore.Store
	Algo  object.Algo

	Bridge *VCSBridge
	config *Config
}

// Open searches upward from path for a .git directory (or honors
// GIT_DIR/GIT_COMMON_DIR from the environment per §6) and opens the
// repository handle.
func Open(path string) (*Repo, error) {
	gitDir, rootDir, err := locateGitDir(path)
	if err != nil {
		return nil, err
	}
	commonDir := gitDir
	if d := os.Getenv("GIT_COMMON_DIR"); d != "" {
		commonDir = d
	}

	algo := detectAlgo(commonDir)
	store, err := objectstore.New(commonDir, algo)
	if err != nil {
		return nil, fmt.Errorf("reviserepo: open object store: %w", err)
	}

	return &Repo{
		RootDir:   rootDir,
		GitDir:    gitDir,
		CommonDir: commonDir,
		Store:     store,
		Algo:      algo,
		Bridge:    NewVCSBridge(rootDir),
	}, nil
}

func locateGitDir(path string) (gitDir, rootDir string, err error) {
	if d := os.Getenv("GIT_DIR"); d != "" {
		abs, err := filepath.Abs(d)
		if err != nil {
			return "", "", fmt.Errorf("reviserepo: GIT_DIR: %w", err)
		}
		return abs, filepath.Dir(abs), nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("reviserepo: abs path: %w", err)
	}

	cur := abs
	for {
		candidate := filepath.Join(cur, ".git")
		info, statErr := os.Stat(candidate)
		if statErr == nil {
			if info.IsDir() {
				return candidate, cur, nil
			}
			// A file at .git means a linked worktree: it contains
			// "gitdir: <path>".
			if resolved, werr := readGitFileLink(candidate); werr == nil {
				return resolved, cur, nil
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", "", fmt.Errorf("reviserepo: not a git repository (or any parent up to /): %s", abs)
		}
		cur = parent
	}
}

func readGitFileLink(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	const prefix = "gitdir: "
	s := string(data)
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", fmt.Errorf("reviserepo: malformed .git file %s", path)
	}
	target := s[len(prefix):]
	for len(target) > 0 && (target[len(target)-1] == '\n' || target[len(target)-1] == '\r') {
		target = target[:len(target)-1]
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return target, nil
}

// detectAlgo inspects the repository's config for extensions.objectFormat
// to select SHA-1 vs SHA-256 (§3). Missing or unreadable config defaults
// to SHA-1, matching every pre-SHA-256-transition repository.
func detectAlgo(gitDir string) object.Algo {
	data, err := os.ReadFile(filepath.Join(gitDir, "config"))
	if err != nil {
		return object.AlgoSHA1
	}
	if hasConfigValue(string(data), "objectformat", "sha256") {
		return object.AlgoSHA256
	}
	return object.AlgoSHA1
}

// Init creates a fresh repository at path. Production use of revise never
// creates a repository (§1: it operates on an existing checkout); this
// exists to build self-contained fixtures for tests without shelling out
// to a real git binary.
func Init(path string) (*Repo, error) {
	gitDir := filepath.Join(path, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return nil, fmt.Errorf("reviserepo: init: repository already exists at %s", gitDir)
	}

	dirs := []string{
		filepath.Join(gitDir, "objects"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("reviserepo: init: mkdir %s: %w", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("reviserepo: init: write HEAD: %w", err)
	}

	store, err := objectstore.New(gitDir, object.AlgoSHA1)
	if err != nil {
		return nil, err
	}
	return &Repo{
		RootDir:   path,
		GitDir:    gitDir,
		CommonDir: gitDir,
		Store:     store,
		Algo:      object.AlgoSHA1,
		Bridge:    NewVCSBridge(path),
	}, nil
}
