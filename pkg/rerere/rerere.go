// Package rerere memoizes conflict resolutions across separate merge
// invocations (§4.8): a normalized fingerprint of the conflicted hunks
// keys a preimage/postimage pair recorded under an rr-cache directory,
// mirroring Git's rerere.c cache layout.
package rerere

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrParseFailed indicates body did not contain well-formed conflict
// markers where one was expected.
type ErrParseFailed struct {
	Reason string
}

func (e *ErrParseFailed) Error() string { return "rerere: parse conflict: " + e.Reason }

// Store is a directory of recorded resolutions, one subdirectory per
// fingerprint holding "preimage" and "postimage" files.
type Store struct {
	Dir string
}

// New wraps dir (typically "<common-dir>/rr-cache") as a resolution store.
// The directory need not exist yet; Record creates it lazily.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// Normalize walks body's conflict markers and returns a normalized form
// (side order made canonical by sorting each hunk pair) along with its
// hex fingerprint. The fingerprint is stable across which side ended up
// "ours" vs "theirs" for a given conflict, so recorded resolutions still
// apply after an unrelated reordering upstream.
func Normalize(body []byte) (normalized []byte, fingerprint string, err error) {
	hasher := sha1.New()
	var out bytes.Buffer

	lines := splitLinesKeepEnds(body)
	i := 0
	for i < len(lines) {
		line := lines[i]
		if bytes.HasPrefix(line, []byte("<<<<<<<")) {
			hunk, next, herr := normalizeConflict(lines, i+1, hasher)
			if herr != nil {
				return nil, "", herr
			}
			out.Write(hunk)
			i = next
			continue
		}
		out.Write(line)
		i++
	}
	return out.Bytes(), fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// normalizeConflict parses a single (possibly recursively nested)
// conflict starting just after its opening "<<<<<<<" marker at lines[i],
// returning the normalized block text and the index just past the
// closing ">>>>>>>" marker. hasher is nil while parsing a nested
// conflict: only the outermost fingerprint is hashed, matching how a
// nested conflict's own markers become ordinary content of the enclosing
// hunk (§4.8's normalization mirrors the merge tool's own recursive
// marker handling).
func normalizeConflict(lines [][]byte, i int, hasher interface{ Write([]byte) (int, error) }) ([]byte, int, error) {
	var curHunk *bytes.Buffer = &bytes.Buffer{}
	var otherHunk *bytes.Buffer

	for {
		if i >= len(lines) {
			return nil, 0, &ErrParseFailed{Reason: "unexpected eof"}
		}
		line := lines[i]
		switch {
		case bytes.HasPrefix(line, []byte("<<<<<<<")):
			nested, next, err := normalizeConflict(lines, i+1, nil)
			if err != nil {
				return nil, 0, err
			}
			if curHunk != nil {
				curHunk.Write(nested)
			}
			i = next
			continue

		case bytes.HasPrefix(line, []byte("|||||||")):
			if otherHunk != nil {
				return nil, 0, &ErrParseFailed{Reason: "unexpected ||||||| marker"}
			}
			otherHunk, curHunk = curHunk, nil
			i++

		case bytes.HasPrefix(line, []byte("=======")):
			if curHunk != nil {
				if otherHunk != nil {
					return nil, 0, &ErrParseFailed{Reason: "unexpected ======= marker"}
				}
				otherHunk = curHunk
			}
			curHunk = &bytes.Buffer{}
			i++

		case bytes.HasPrefix(line, []byte(">>>>>>>")):
			if curHunk == nil || otherHunk == nil {
				return nil, 0, &ErrParseFailed{Reason: "unexpected >>>>>>> marker"}
			}
			hunk1, hunk2 := curHunk.Bytes(), otherHunk.Bytes()
			if bytes.Compare(hunk2, hunk1) < 0 {
				hunk1, hunk2 = hunk2, hunk1
			}
			if hasher != nil {
				hasher.Write(hunk1)
				hasher.Write([]byte{0})
				hasher.Write(hunk2)
				hasher.Write([]byte{0})
			}
			var out bytes.Buffer
			out.WriteString("<<<<<<<\n")
			out.Write(hunk1)
			out.WriteString("=======\n")
			out.Write(hunk2)
			out.WriteString(">>>>>>>\n")
			return out.Bytes(), i + 1, nil

		default:
			if curHunk != nil {
				curHunk.Write(line)
			}
			i++
		}
	}
}

func splitLinesKeepEnds(body []byte) [][]byte {
	var lines [][]byte
	for len(body) > 0 {
		idx := bytes.IndexByte(body, '\n')
		if idx < 0 {
			lines = append(lines, body)
			break
		}
		lines = append(lines, body[:idx+1])
		body = body[idx+1:]
	}
	return lines
}

// Replay looks up a prior resolution for fingerprint. ok is false when
// nothing is recorded for it.
func (s *Store) Replay(fingerprint string) (preimage, postimage []byte, ok bool, err error) {
	dir := filepath.Join(s.Dir, fingerprint)
	if st, statErr := os.Stat(dir); statErr != nil || !st.IsDir() {
		return nil, nil, false, nil
	}

	preimage, err = os.ReadFile(filepath.Join(dir, "preimage"))
	if err != nil {
		return nil, nil, false, fmt.Errorf("rerere: read cached preimage: %w", err)
	}
	postimage, err = os.ReadFile(filepath.Join(dir, "postimage"))
	if err != nil {
		return nil, nil, false, fmt.Errorf("rerere: read cached postimage: %w", err)
	}
	return preimage, postimage, true, nil
}

// Touch bumps postimage's mtime so Git-style rerere garbage collection
// sees the resolution was used recently (mirrors os.utime in merge.py's
// replay_recorded_resolution).
func (s *Store) Touch(fingerprint string) error {
	path := filepath.Join(s.Dir, fingerprint, "postimage")
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// Record persists a resolution for fingerprint, overwriting any prior
// entry. A write failure here is diagnostic only; the merge itself
// already succeeded by the time Record is called.
func (s *Store) Record(fingerprint string, preimage, postimage []byte) error {
	dir := filepath.Join(s.Dir, fingerprint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("rerere: create cache dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, "preimage"), preimage); err != nil {
		return fmt.Errorf("rerere: write preimage: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, "postimage"), postimage); err != nil {
		return fmt.Errorf("rerere: write postimage: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rerere-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
