package rewrite

import (
	"context"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// TreeBridge is the subset of the VCS bridge the cut step needs: an
// in-index hunk split with no real working-tree I/O (grounded on
// utils.py's cut_commit, which does the whole operation against a
// temporary GIT_INDEX_FILE).
type TreeBridge interface {
	ReadTree(ctx context.Context, indexFile string, tree object.Hash) error
	WriteTree(ctx context.Context, indexFile string) (object.Hash, error)
	AddPatch(ctx context.Context, indexFile string, target object.Hash, pathspec ...string) error
}

// ScratchDir hands out a path for a named temporary file, cleaned up by
// the caller once the rewrite finishes (§5: scratch state lives under a
// per-run directory named with a random component).
type ScratchDir interface {
	Path(name string) string
}

// Cut splits commit into two commits that together reach the same final
// tree: part1 holds whichever hunks the user selects via an interactive
// `reset --patch` against commit's own tree, part2 (parented on part1)
// holds the rest. commit.Tree is the already-rebased final tree; parentTree
// is the tree of commit's (rebased) parent. Both parts are separately
// message-edited with a "[1]"/"[2]" prefix, matching cut_commit's
// part1_msg/part2_msg convention.
func Cut(ctx context.Context, bridge TreeBridge, scratch ScratchDir, editor MessageEditor, writer CommitWriter, commit object.Commit, parentTree object.Hash) (part1OID, part2OID object.Hash, err error) {
	indexFile := scratch.Path("cut-index")
	if err := bridge.ReadTree(ctx, indexFile, parentTree); err != nil {
		return "", "", err
	}
	if err := bridge.AddPatch(ctx, indexFile, commit.Tree, "."); err != nil {
		return "", "", err
	}
	midTree, err := bridge.WriteTree(ctx, indexFile)
	if err != nil {
		return "", "", err
	}
	if midTree == parentTree {
		return "", "", reviseerr.New(reviseerr.UserAbort, "cut part [1] would be empty, nothing selected")
	}
	if midTree == commit.Tree {
		return "", "", reviseerr.New(reviseerr.UserAbort, "cut part [2] would be empty, everything selected")
	}

	part1 := commit
	part1.Tree = midTree
	part1.Message = withPrefix("[1] ", commit.Message)
	if editor != nil {
		part1.Message, err = editor.EditMessage("cut part [1]", part1.Message)
		if err != nil {
			return "", "", err
		}
	}
	part1OID, err = writer.NewCommit(&part1)
	if err != nil {
		return "", "", err
	}

	part2 := commit
	part2.Parents = []object.Hash{part1OID}
	part2.Message = withPrefix("[2] ", commit.Message)
	if editor != nil {
		part2.Message, err = editor.EditMessage("cut part [2]", part2.Message)
		if err != nil {
			return "", "", err
		}
	}
	part2OID, err = writer.NewCommit(&part2)
	if err != nil {
		return "", "", err
	}

	return part1OID, part2OID, nil
}

func withPrefix(prefix string, message []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(message))
	out = append(out, prefix...)
	out = append(out, message...)
	return out
}
