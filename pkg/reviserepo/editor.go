package reviserepo

import (
	"bytes"
	"os"
	"os/exec"
	"strings"

	"github.com/odvcencio/revise/pkg/reviseerr"
)

// EditorError reports a non-zero editor exit, translated to UserAbort by
// callers per §7.
type EditorError struct {
	Err error
}

func (e *EditorError) Error() string { return "reviserepo: editor: " + e.Err.Error() }
func (e *EditorError) Unwrap() error { return e.Err }

// Editor resolves which command to invoke for a one-off message edit
// (commit messages, `cut` splits): GIT_EDITOR, then core.editor, then
// $VISUAL, then $EDITOR, then "vi" (§4.2, §6).
func (r *Repo) Editor() string {
	if e := os.Getenv("GIT_EDITOR"); e != "" {
		return e
	}
	if e := r.StringConfig("core.editor", ""); e != "" {
		return e
	}
	if e := os.Getenv("VISUAL"); e != "" {
		return e
	}
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	return "vi"
}

// SequenceEditor resolves the editor used for the interactive todo list:
// GIT_SEQUENCE_EDITOR, then sequence.editor, then Editor() (§4.2, §6),
// mirroring git's own editor.c:sequence_editor lookup order.
func (r *Repo) SequenceEditor() string {
	if e := os.Getenv("GIT_SEQUENCE_EDITOR"); e != "" {
		return e
	}
	if e := r.StringConfig("sequence.editor", ""); e != "" {
		return e
	}
	return r.Editor()
}

// CommentChar resolves core.commentChar (§6). "auto" scans text for the
// first candidate in a fixed set that doesn't start any line, matching
// utils.py:get_commentchar. An unset config defaults to '#'.
func (r *Repo) CommentChar(text []byte) (byte, error) {
	raw := r.StringConfig("core.commentChar", "#")
	if raw != "auto" {
		if len(raw) != 1 {
			return 0, reviseerr.New(reviseerr.TodoInvalid, "core.commentChar must be a single character")
		}
		return raw[0], nil
	}

	candidates := []byte("#;@!$%^&|:")
	used := make(map[byte]bool)
	for _, line := range bytes.Split(text, []byte("\n")) {
		if len(line) > 0 {
			used[line[0]] = true
		}
	}
	for _, c := range candidates {
		if !used[c] {
			return c, nil
		}
	}
	return 0, reviseerr.New(reviseerr.TodoInvalid, "unable to automatically select a comment character")
}

// EditOptions configures RunEditor's comment scaffolding.
type EditOptions struct {
	Comments                          string
	AllowEmpty                        bool
	AllowPrecedingWhitespaceComments  bool
	UseSequenceEditor                 bool
}

// RunEditor writes text (plus an optional comment block) to filename
// inside a fresh scratch directory, invokes the configured editor through
// a POSIX shell (so quoted paths with arguments parse correctly, §4.2/§9),
// strips comment lines from the result, and returns the edited bytes.
// Non-UTF-8 message bytes are never decoded (§9 Open Questions): the
// editor round-trip treats everything as opaque bytes end to end.
func (r *Repo) RunEditor(filename string, text []byte, opts EditOptions) ([]byte, error) {
	scratch, err := r.NewScratch()
	if err != nil {
		return nil, err
	}
	defer scratch.Close()

	path := scratch.Path(filename)
	commentChar, err := r.CommentChar(text)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(text)
	if !bytes.HasSuffix(text, []byte("\n")) && len(text) > 0 {
		buf.WriteByte('\n')
	}
	if opts.Comments != "" {
		buf.WriteByte('\n')
		for _, line := range strings.Split(dedent(opts.Comments), "\n") {
			buf.WriteByte(commentChar)
			if line != "" {
				buf.WriteByte(' ')
				buf.WriteString(line)
			}
			buf.WriteByte('\n')
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	editor := r.Editor()
	if opts.UseSequenceEditor {
		editor = r.SequenceEditor()
	}
	if err := runEditorShell(editor, path); err != nil {
		return nil, reviseerr.Wrap(reviseerr.UserAbort, "editor exited non-zero", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if opts.Comments != "" {
		data = stripComments(data, commentChar, opts.AllowPrecedingWhitespaceComments)
	}
	if len(data) == 0 && !opts.AllowEmpty {
		return nil, reviseerr.New(reviseerr.UserAbort, "empty file - aborting")
	}
	return data, nil
}

// runEditorShell invokes editor via /bin/sh -ec so a configured editor
// like `code --wait` or a quoted path with arguments parses the way the
// user's shell would parse it (§4.2, §9).
func runEditorShell(editor, path string) error {
	cmd := exec.Command("/bin/sh", "-ec", editor+` "$@"`, editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = "" // scratch paths are absolute
	return cmd.Run()
}

func stripComments(data []byte, commentChar byte, allowLeadingWhitespace bool) []byte {
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		trimmed := line
		if allowLeadingWhitespace {
			trimmed = bytes.TrimLeft(trimmed, " \t")
		}
		if len(trimmed) > 0 && trimmed[0] == commentChar {
			continue
		}
		out.Write(line)
	}
	result := bytes.TrimRight(out.Bytes(), "\n")
	if len(result) > 0 {
		result = append(result, '\n')
	}
	return result
}

func dedent(s string) string {
	lines := strings.Split(s, "\n")
	minIndent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, " \t"))
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return s
	}
	for i, l := range lines {
		if len(l) >= minIndent {
			lines[i] = l[minIndent:]
		}
	}
	return strings.Join(lines, "\n")
}
