package reviserepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// ErrRefCASMismatch is returned by UpdateRefCAS when the current value of
// the ref does not match the caller's expected old value (§5: "a
// concurrent writer causes RefUpdateFailed and an aborted rewrite").
var ErrRefCASMismatch = errors.New("reviserepo: ref compare-and-swap mismatch")

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// Head reads GitDir/HEAD. If the content is symbolic ("ref: ..."), the
// target ref path is returned; otherwise the raw content is a detached
// commit hash.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("reviserepo: read HEAD: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}

// ResolveRef resolves a ref name to an object hash (§4.2). It satisfies
// revparse.RefResolver. Resolution order: "HEAD" follows the symbolic
// target recursively; a name already prefixed with "refs/" is read
// directly; anything else is tried as "refs/heads/<name>".
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		return object.Hash(head), nil
	}

	var refPath string
	if strings.HasPrefix(name, "refs/") {
		refPath = filepath.Join(r.CommonDir, filepath.FromSlash(name))
	} else {
		refPath = filepath.Join(r.CommonDir, "refs", "heads", name)
	}

	data, err := os.ReadFile(refPath)
	if err != nil {
		if oid, ok := r.resolvePackedRef(name); ok {
			return oid, nil
		}
		return "", reviseerr.Wrap(reviseerr.BadRevision, "resolve ref "+name, err)
	}
	return object.Hash(strings.TrimRight(string(data), "\n")), nil
}

func (r *Repo) resolvePackedRef(name string) (object.Hash, bool) {
	data, err := os.ReadFile(filepath.Join(r.CommonDir, "packed-refs"))
	if err != nil {
		return "", false
	}
	full := name
	if !strings.HasPrefix(full, "refs/") {
		full = "refs/heads/" + full
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		if fields[1] == full {
			return object.Hash(fields[0]), true
		}
	}
	return "", false
}

// UpdateRefCAS updates ref via a compare-and-swap against expectedOld
// (§4.2, §5) and records reason as the reflog message. Passing a zero
// expectedOld means "the ref must not currently exist". The write itself
// goes through the same lockfile+rename discipline the VCS's own ref
// transaction plumbing uses, so a concurrent writer loses the race rather
// than corrupting the ref file.
func (r *Repo) UpdateRefCAS(ref string, expectedOld, newOID object.Hash, reason string) error {
	fullRef := ref
	if !strings.HasPrefix(fullRef, "refs/") && fullRef != "HEAD" {
		fullRef = "refs/heads/" + fullRef
	}
	if err := r.updateRefDirect(fullRef, expectedOld, newOID); err != nil {
		if errors.Is(err, ErrRefCASMismatch) {
			return reviseerr.Wrap(reviseerr.RefUpdateFailed, "update "+ref, err)
		}
		return reviseerr.Wrap(reviseerr.RefUpdateFailed, "update "+ref, err)
	}
	if err := r.appendReflog(fullRef, expectedOld, newOID, reason); err != nil {
		return reviseerr.Wrap(reviseerr.RefUpdateFailed, "update "+ref+": reflog", err)
	}
	return nil
}

// updateRefDirect writes ref directly via lockfile+rename.
func (r *Repo) updateRefDirect(name string, expectedOld, newOID object.Hash) error {
	refPath := filepath.Join(r.CommonDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("reviserepo: update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("reviserepo: update ref %q: lock: %w", name, err)
	}
	cleanup := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanup {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := r.readRefHash(refPath, name)
	if err != nil {
		return fmt.Errorf("reviserepo: update ref %q: read old: %w", name, err)
	}
	if expectedOld != "" && oldHash != expectedOld {
		return fmt.Errorf("reviserepo: update ref %q: %w (expected %s, found %s)", name, ErrRefCASMismatch, expectedOld, oldHash)
	}
	if expectedOld == "" && oldHash != "" {
		return fmt.Errorf("reviserepo: update ref %q: %w (expected no ref, found %s)", name, ErrRefCASMismatch, oldHash)
	}

	if _, err := lockFile.WriteString(string(newOID) + "\n"); err != nil {
		return fmt.Errorf("reviserepo: update ref %q: write: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("reviserepo: update ref %q: close: %w", name, err)
	}
	lockFile = nil
	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("reviserepo: update ref %q: rename: %w", name, err)
	}
	cleanup = false
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

// readRefHash reads name's current value for the CAS check in
// updateRefDirect. A ref with no loose file may still be live in
// packed-refs (after `git pack-refs`/`gc`, an entirely ordinary repo
// state) — checked the same way ResolveRef falls back to
// resolvePackedRef, so a packed branch doesn't read back as absent and
// fail the compare-and-swap against its real current value.
func (r *Repo) readRefHash(refPath, name string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if oid, ok := r.resolvePackedRef(name); ok {
			return oid, nil
		}
		return "", nil
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
