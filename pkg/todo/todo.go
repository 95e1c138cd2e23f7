// Package todo implements the interactive todo list (§4.6): the
// pick/fixup/squash/reword/cut/index program a user edits to describe
// how a range of commits should be rewritten, including autosquash
// resolution and the two on-disk serializations the editor sees.
package todo

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// Kind is one of the six todo verbs.
type Kind string

const (
	Pick   Kind = "pick"
	Fixup  Kind = "fixup"
	Squash Kind = "squash"
	Reword Kind = "reword"
	Cut    Kind = "cut"
	Index  Kind = "index"
)

// kindOrder is the fixed disambiguation order for prefix matching: the
// first entry whose full word starts with the user's input wins, so "s"
// means squash and "f" means fixup even though both start with a
// consonant a human might type for either.
var kindOrder = []Kind{Pick, Fixup, Squash, Reword, Cut, Index}

// ParseKind resolves a (possibly abbreviated) todo verb the way the
// editor's saved file does: any non-empty prefix of one of the six verbs
// names it, checked in kindOrder.
func ParseKind(s string) (Kind, error) {
	if s != "" {
		for _, k := range kindOrder {
			if strings.HasPrefix(string(k), s) {
				return k, nil
			}
		}
	}
	return "", reviseerr.New(reviseerr.TodoInvalid, fmt.Sprintf("step kind %q must be one of: pick, fixup, squash, reword, cut, or index", s))
}

// CommitStore is the subset of the object cache the todo program needs:
// commit lookup by OID.
type CommitStore interface {
	GetCommit(oid object.Hash) (*object.Commit, error)
}

// Resolver resolves a revision expression (a bare OID, abbreviation, or
// ref) to an object identifier (§4.4); *revparse.Resolve bound to a
// repository satisfies this.
type Resolver func(spec string) (object.Hash, error)

// Step is one line of the todo program: an action paired with the
// commit it acts on. Message is set only when the user supplied an
// override — via the message-editing serialization, or a reword's
// prompt — and is otherwise nil, meaning "keep the original message".
type Step struct {
	Kind    Kind
	Commit  object.Hash
	Message []byte
}

var stepLinePattern = regexp.MustCompile(`^(\S+)\s+(\S+)`)

// ParseStep parses one "<verb> <revision>" todo line, resolving the
// revision through resolve and confirming it names an existing commit.
func ParseStep(line string, resolve Resolver, commits CommitStore) (Step, error) {
	m := stepLinePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Step{}, reviseerr.New(reviseerr.TodoInvalid, fmt.Sprintf("todo entry %q must follow format <keyword> <sha> <optional message>", line))
	}
	kind, err := ParseKind(m[1])
	if err != nil {
		return Step{}, err
	}
	oid, err := resolve(m[2])
	if err != nil {
		return Step{}, reviseerr.Wrap(reviseerr.TodoInvalid, fmt.Sprintf("todo entry %q", line), err)
	}
	if _, err := commits.GetCommit(oid); err != nil {
		return Step{}, err
	}
	return Step{Kind: kind, Commit: oid}, nil
}

// String renders a step in the compact "<kind> <short-oid>" form used by
// the sequence-editor serialization and log lines.
func (s Step) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Commit.Short(7))
}

// Summary returns the first line of c's message, used both to label todo
// entries for the user and to drive autosquash matching.
func Summary(c *object.Commit) string {
	msg := c.Message
	if idx := bytes.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return string(msg)
}

// BuildTodos produces the initial pick-everything program for a range of
// commits (oldest first), optionally appending a trailing index step for
// staged changes captured as a temporary commit (§4.6, §6).
func BuildTodos(commits []object.Hash, index object.Hash) []Step {
	steps := make([]Step, 0, len(commits)+1)
	for _, c := range commits {
		steps = append(steps, Step{Kind: Pick, Commit: c})
	}
	if !index.IsZero() {
		steps = append(steps, Step{Kind: Index, Commit: index})
	}
	return steps
}

// ValidateTodos checks an edited todo list against the original one: the
// edited list must be a permutation of the same commit set (no
// duplicates, nothing added, nothing dropped), and any index steps must
// all trail the list (§4.6 edge cases).
func ValidateTodos(original, edited []Step) error {
	oldSet := make(map[object.Hash]struct{}, len(original))
	for _, s := range original {
		oldSet[s.Commit] = struct{}{}
	}

	newSet := make(map[object.Hash]struct{}, len(edited))
	for _, s := range edited {
		if _, dup := newSet[s.Commit]; dup {
			return reviseerr.New(reviseerr.TodoInvalid, "duplicate commit found in todo list")
		}
		newSet[s.Commit] = struct{}{}
	}

	for oid := range newSet {
		if _, ok := oldSet[oid]; !ok {
			return reviseerr.New(reviseerr.TodoInvalid, "todo list references a commit outside the original range")
		}
	}
	for oid := range oldSet {
		if _, ok := newSet[oid]; !ok {
			return reviseerr.New(reviseerr.TodoInvalid, "todo list is missing a commit from the original range")
		}
	}

	sawIndex := false
	for _, s := range edited {
		if s.Kind == Index {
			sawIndex = true
		} else if sawIndex {
			return reviseerr.New(reviseerr.TodoInvalid, "index steps must trail all other todo entries")
		}
	}
	return nil
}

// AutosquashTodos reorders and retags todos so that any commit whose
// summary starts with "fixup! " or "squash! " is moved directly after
// the commit it targets and given the matching Fixup/Squash kind (§4.6).
// The target is located by following the fixup!/squash! prefix chain
// (so a fixup of a fixup resolves through to the ultimate ancestor) and
// searching first within todos already collected, then by resolving the
// remaining needle as a revision directly.
func AutosquashTodos(todos []Step, commits CommitStore, resolve Resolver) ([]Step, error) {
	var picks [][]Step
	for _, step := range todos {
		if err := addAutosquashStep(step, &picks, commits, resolve); err != nil {
			return nil, err
		}
	}

	var out []Step
	for _, seq := range picks {
		out = append(out, seq...)
	}
	return out, nil
}

func addAutosquashStep(step Step, picks *[][]Step, commits CommitStore, resolve Resolver) error {
	commit, err := commits.GetCommit(step.Commit)
	if err != nil {
		return err
	}
	summary := Summary(commit)
	needle := summary
	for strings.HasPrefix(needle, "fixup! ") || strings.HasPrefix(needle, "squash! ") {
		parts := strings.SplitN(needle, " ", 2)
		if len(parts) < 2 {
			break
		}
		needle = parts[1]
	}

	if needle != summary {
		var newStep Step
		switch {
		case strings.HasPrefix(summary, "fixup!"):
			newStep = Step{Kind: Fixup, Commit: step.Commit}
		case strings.HasPrefix(summary, "squash!"):
			newStep = Step{Kind: Squash, Commit: step.Commit}
		default:
			newStep = Step{Kind: Pick, Commit: step.Commit}
		}

		for i, seq := range *picks {
			head, err := commits.GetCommit(seq[0].Commit)
			if err != nil {
				return err
			}
			if strings.HasPrefix(Summary(head), needle) {
				(*picks)[i] = append(seq, newStep)
				return nil
			}
		}

		if target, err := resolve(needle); err == nil {
			for i, seq := range *picks {
				for _, s := range seq {
					if s.Commit == target {
						(*picks)[i] = append(seq, newStep)
						return nil
					}
				}
			}
		}

		return reviseerr.New(reviseerr.TodoInvalid,
			fmt.Sprintf("autosquash target %q for %s not found in rewrite range", needle, step.Commit.Short(7)))
	}

	*picks = append(*picks, []Step{step})
	return nil
}
