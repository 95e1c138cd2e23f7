package rewrite

import (
	"bytes"
	"context"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
	"github.com/odvcencio/revise/pkg/todo"
)

// TreeMerger is the C5 collaborator: three-way tree merge by object hash.
type TreeMerger interface {
	MergeTrees(ctx context.Context, base, ours, theirs object.Hash) (object.Hash, error)
}

// CommitWriter buffers a new commit object and returns its OID.
type CommitWriter interface {
	NewCommit(c *object.Commit) (object.Hash, error)
}

// MessageEditor edits a commit message, used for reword/squash/cut. label
// is a short description shown as editor context, not part of the text
// itself.
type MessageEditor interface {
	EditMessage(label string, initial []byte) ([]byte, error)
}

// Signer signs a fully-built commit, mirroring pkg/sign.SignCommit's
// contract: it must recompute nothing but GPGSig, and the caller derives
// the OID from the returned value.
type Signer func(c object.Commit) (object.Commit, error)

// HookRunner runs the commit-msg hook against a candidate message,
// returning the (possibly rewritten) message or an error if the hook
// rejects it.
type HookRunner interface {
	RunCommitMsg(message []byte) ([]byte, error)
}

// Engine replays a todo program onto a new parent (§4.7). Editor, Bridge,
// Scratch, Sign, and Hook may all be nil: with a nil Editor, reword,
// squash and cut keep their generated messages unedited; a cut step fails
// outright unless both Bridge and Scratch are set; signing/hooks are
// simply skipped when their collaborator is nil since neither is
// mandatory per config.
type Engine struct {
	Commits CommitStore
	Merger  TreeMerger
	Writer  CommitWriter
	Editor  MessageEditor
	Bridge  TreeBridge
	Scratch ScratchDir

	Sign Signer
	Hook HookRunner

	// Reauthor replaces every new commit's author with Committer (§4.7,
	// §6 --reauthor), rather than the source commit's original author.
	Reauthor  bool
	Committer object.Signature

	// IndexTree receives the tree of a trailing "index" step, if any,
	// once Apply returns without error; the caller writes it back to the
	// staging area via the VCS binary (§4.7 step 3: "index" emits no
	// commit).
	IndexTree object.Hash
}

// Apply replays edited onto current (the target anchor, possibly zero
// for a root rewrite), using original to detect the "deja vu" case:
// when a step's final position relative to the commits applied so far
// exactly matches its position in the original program, its already-known
// resulting tree is reused instead of re-running the tree merge, so a
// pure reordering never re-prompts the user for a conflict they already
// resolved (§4.7, grounded on todo.py's apply_todos).
func (e *Engine) Apply(ctx context.Context, current object.Hash, original, edited []todo.Step) (object.Hash, error) {
	appliedOld := make(map[object.Hash]bool, len(original))
	appliedNew := make(map[object.Hash]bool, len(edited))

	n := len(original)
	if len(edited) < n {
		n = len(edited)
	}

	for i := 0; i < n; i++ {
		known := original[i]
		step := edited[i]
		appliedOld[known.Commit] = true
		appliedNew[step.Commit] = true
		dejaVu := sameSet(appliedOld, appliedNew)

		stepCommit, err := e.Commits.GetCommit(step.Commit)
		if err != nil {
			return "", err
		}

		var rebasedTree object.Hash
		if dejaVu {
			knownCommit, err := e.Commits.GetCommit(known.Commit)
			if err != nil {
				return "", err
			}
			rebasedTree = knownCommit.Tree
		} else {
			rebasedTree, err = e.mergeOnto(ctx, current, stepCommit)
			if err != nil {
				return "", err
			}
		}

		message := step.Message
		if message == nil {
			message = stepCommit.Message
		}

		rebased := object.Commit{
			Tree:         rebasedTree,
			Parents:      parentsOf(current),
			Author:       stepCommit.Author,
			Committer:    e.Committer,
			ExtraHeaders: stepCommit.ExtraHeaders,
			Message:      message,
		}

		switch step.Kind {
		case todo.Pick:
			current, err = e.finalize(rebased)

		case todo.Fixup:
			if current.IsZero() {
				return "", reviseerr.New(reviseerr.TodoInvalid, "cannot apply fixup as the first commit")
			}
			base, ferr := e.Commits.GetCommit(current)
			if ferr != nil {
				return "", ferr
			}
			fused := *base
			fused.Tree = rebasedTree
			current, err = e.finalize(fused)

		case todo.Reword:
			edited, eerr := e.editMessage("reword "+step.Commit.Short(7), rebased.Message)
			if eerr != nil {
				return "", eerr
			}
			rebased.Message = edited
			current, err = e.finalize(rebased)

		case todo.Squash:
			if current.IsZero() {
				return "", reviseerr.New(reviseerr.TodoInvalid, "cannot apply squash as the first commit")
			}
			base, serr := e.Commits.GetCommit(current)
			if serr != nil {
				return "", serr
			}
			fused := *base
			fused.Tree = rebasedTree
			fused.Message = append(append(append([]byte{}, base.Message...), []byte("\n\n")...), rebased.Message...)
			editedMsg, eerr := e.editMessage("squash "+step.Commit.Short(7), fused.Message)
			if eerr != nil {
				return "", eerr
			}
			fused.Message = editedMsg
			current, err = e.finalize(fused)

		case todo.Cut:
			parentTree, terr := e.treeOf(parentsOf(current))
			if terr != nil {
				return "", terr
			}
			_, part2, cerr := e.cut(ctx, rebased, parentTree)
			if cerr != nil {
				return "", cerr
			}
			current, err = part2, nil

		case todo.Index:
			e.IndexTree = rebasedTree
			return current, nil

		default:
			return "", reviseerr.New(reviseerr.TodoInvalid, "unknown todo step kind")
		}
		if err != nil {
			return "", err
		}
	}

	if current.IsZero() {
		return "", reviseerr.New(reviseerr.TodoInvalid, "no commits introduced on top of the root commit")
	}
	return current, nil
}

func sameSet(a, b map[object.Hash]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func parentsOf(h object.Hash) []object.Hash {
	if h.IsZero() {
		return nil
	}
	return []object.Hash{h}
}

func (e *Engine) treeOf(parents []object.Hash) (object.Hash, error) {
	if len(parents) == 0 {
		return "", nil
	}
	c, err := e.Commits.GetCommit(parents[0])
	if err != nil {
		return "", err
	}
	return c.Tree, nil
}

// mergeOnto three-way merges stepCommit onto current: base is
// stepCommit's own original parent tree, ours is current's tree, theirs
// is stepCommit's tree (§4.7 step 3, pick/fixup/squash rule).
func (e *Engine) mergeOnto(ctx context.Context, current object.Hash, stepCommit *object.Commit) (object.Hash, error) {
	var baseTree object.Hash
	if len(stepCommit.Parents) > 0 {
		origParent, err := e.Commits.GetCommit(stepCommit.Parents[0])
		if err != nil {
			return "", err
		}
		baseTree = origParent.Tree
	}

	oursTree, err := e.treeOf(parentsOf(current))
	if err != nil {
		return "", err
	}
	return e.Merger.MergeTrees(ctx, baseTree, oursTree, stepCommit.Tree)
}

func (e *Engine) editMessage(label string, initial []byte) ([]byte, error) {
	if e.Editor == nil {
		return initial, nil
	}
	return e.Editor.EditMessage(label, initial)
}

func (e *Engine) cut(ctx context.Context, rebased object.Commit, parentTree object.Hash) (part1, part2 object.Hash, err error) {
	if e.Bridge == nil || e.Scratch == nil {
		return "", "", reviseerr.New(reviseerr.TodoInvalid, "cut requires a VCS bridge and scratch directory")
	}
	return Cut(ctx, e.Bridge, e.Scratch, e.Editor, e.Writer, rebased, parentTree)
}

// finalize applies --reauthor, the commit-msg hook, and signing (in that
// order, matching §4.7's "each new commit is signed" happening last so
// the signature covers the final message) before writing the commit.
func (e *Engine) finalize(c object.Commit) (object.Hash, error) {
	if e.Reauthor {
		c.Author = e.Committer
	}
	if e.Hook != nil {
		msg, err := e.Hook.RunCommitMsg(c.Message)
		if err != nil {
			return "", err
		}
		c.Message = msg
	}
	if e.Sign != nil {
		signed, err := e.Sign(c)
		if err != nil {
			return "", err
		}
		c = signed
	}
	if !bytes.HasSuffix(c.Message, []byte("\n")) {
		c.Message = append(c.Message, '\n')
	}
	return e.Writer.NewCommit(&c)
}
