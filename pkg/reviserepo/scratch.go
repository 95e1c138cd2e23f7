package reviserepo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Scratch is a scoped scratch directory for editor round-trips and blob
// merge staging (§9: "Scoped acquisition of a scratch directory with
// guaranteed removal on all exit paths"). Naming is uuid-based so
// concurrent revise invocations against the same repository never
// collide, upgrading the teacher's plain os.MkdirTemp usage.
type Scratch struct {
	Dir string
}

// NewScratch creates a fresh scratch directory under GitDir and returns a
// handle whose Close removes it.
func (r *Repo) NewScratch() (*Scratch, error) {
	base := filepath.Join(r.GitDir, "revise")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("reviserepo: scratch: mkdir %s: %w", base, err)
	}
	dir := filepath.Join(base, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reviserepo: scratch: mkdir %s: %w", dir, err)
	}
	return &Scratch{Dir: dir}, nil
}

// Close removes the scratch directory and everything under it.
func (s *Scratch) Close() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Path joins name onto the scratch directory.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

func writeAll(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("reviserepo: scratch write %s: mkdir: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("reviserepo: scratch write %s: %w", path, err)
	}
	return nil
}
