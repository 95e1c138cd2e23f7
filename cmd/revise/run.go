package main

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
	"github.com/odvcencio/revise/pkg/reviserepo"
	"github.com/odvcencio/revise/pkg/revparse"
	"github.com/odvcencio/revise/pkg/rewrite"
	"github.com/odvcencio/revise/pkg/sign"
	"github.com/odvcencio/revise/pkg/todo"
	"github.com/odvcencio/revise/pkg/treemerge"
)

// options mirrors the flag set named in §6.
type options struct {
	target       string
	root         bool
	ref          string
	reauthor     bool
	edit         bool
	autosquash   bool
	noAutosquash bool
	all          bool
	patch        bool
	noIndex      bool
	interactive  bool
	messages     []string
	cut          bool
	gpgSign      bool
	noGPGSign    bool
}

// collaborators bundles every dependency the rewrite engine and tree
// merger need, assembled once per invocation from the opened repository.
type collaborators struct {
	repo    *reviserepo.Repo
	scratch *reviserepo.Scratch
	engine  *rewrite.Engine
	merger  *treemerge.Merger
}

func runRevise(opts options) error {
	ctx := context.Background()

	repo, err := reviserepo.Open(".")
	if err != nil {
		return err
	}

	if opts.all {
		if _, err := repo.Bridge.Run(ctx, "add", "-u"); err != nil {
			return err
		}
	}
	if opts.patch {
		if _, err := repo.Bridge.Run(ctx, "add", "-p"); err != nil {
			return err
		}
	}

	scratch, err := repo.NewScratch()
	if err != nil {
		return err
	}
	defer scratch.Close()

	signWanted := repo.GPGSignEnabled()
	if opts.gpgSign {
		signWanted = true
	}
	if opts.noGPGSign {
		signWanted = false
	}

	var signer rewrite.Signer
	if signWanted {
		commitSigner, keyPath, err := sign.NewSSHSigner("")
		if err != nil {
			return reviseerr.Wrap(reviseerr.VcsFailed, "resolve signing key", err)
		}
		logrus.WithField("key", keyPath).Debug("revise: signing enabled")
		signer = func(c object.Commit) (object.Commit, error) {
			return sign.SignCommit(c, commitSigner)
		}
	}

	var hook rewrite.HookRunner
	if repo.RunCommitMsgHook() {
		hook = commitMsgHook{repo: repo}
	}

	var rerere treemerge.RerereStore
	if repo.RerereEnabled() {
		rerere = newRerereStore(repo)
	}

	merger := &treemerge.Merger{
		Store:   repo.Store,
		Blobs:   repo.Bridge,
		Editor:  conflictEditor{repo: repo},
		Rerere:  rerere,
		Scratch: scratch,
	}

	engine := &rewrite.Engine{
		Commits:   repo.Store,
		Merger:    merger,
		Writer:    repo.Store,
		Editor:    messageEditor{repo: repo},
		Bridge:    repo.Bridge,
		Scratch:   scratch,
		Sign:      signer,
		Hook:      hook,
		Reauthor:  opts.reauthor,
		Committer: rewrite.CurrentUser(repo.Bridge),
	}

	col := &collaborators{repo: repo, scratch: scratch, engine: engine, merger: merger}

	headRef := opts.ref
	if headRef == "" {
		headRef = "HEAD"
	}
	headOID, err := repo.ResolveRef(headRef)
	if err != nil {
		return err
	}

	staged, err := stagedCommit(ctx, repo, headOID, opts.noIndex)
	if err != nil {
		return err
	}

	if opts.interactive || (opts.autosquash && !opts.noAutosquash) {
		return runInteractive(ctx, col, opts, headRef, headOID, staged)
	}
	return runNonInteractive(ctx, col, opts, headRef, headOID, staged)
}

// stagedCommit builds the transient "index" pseudo-commit S named in
// §4.7: parent headOID, tree from the real staging area. A nil result
// means there is nothing staged (or --no-index was given).
func stagedCommit(ctx context.Context, repo *reviserepo.Repo, headOID object.Hash, noIndex bool) (*object.Commit, error) {
	if noIndex {
		return nil, nil
	}
	tree, err := repo.Bridge.StagedTree(ctx)
	if err != nil {
		return nil, err
	}
	head, err := repo.Store.GetCommit(headOID)
	if err != nil {
		return nil, err
	}
	if tree == head.Tree {
		return nil, nil
	}
	return &object.Commit{
		Tree:      tree,
		Parents:   []object.Hash{headOID},
		Author:    rewrite.CurrentUser(repo.Bridge),
		Committer: rewrite.CurrentUser(repo.Bridge),
		Message:   []byte("<index>\n"),
	}, nil
}

func runNonInteractive(ctx context.Context, col *collaborators, opts options, headRef string, headOID object.Hash, staged *object.Commit) error {
	repo := col.repo
	if opts.root {
		return reviseerr.New(reviseerr.Misuse, "--root may only be used with --autosquash or --interactive")
	}
	if opts.target == "" {
		return reviseerr.New(reviseerr.Misuse, "<target> is a required argument")
	}

	targetOID, err := revparse.Resolve(opts.target, repo, repo.Store)
	if err != nil {
		return err
	}
	targetCommit, err := repo.Store.GetCommit(targetOID)
	if err != nil {
		return err
	}

	toRebase, err := rewrite.CommitRange(repo.Store, headOID, targetOID)
	if err != nil {
		return err
	}

	modified := *targetCommit
	changed := false

	if staged != nil {
		fmt.Fprintf(os.Stderr, "Applying staged changes to %q\n", opts.target)
		var parentTree object.Hash
		if len(targetCommit.Parents) > 0 {
			p, err := repo.Store.GetCommit(targetCommit.Parents[0])
			if err != nil {
				return err
			}
			parentTree = p.Tree
		}
		merged, err := col.merger.MergeTrees(ctx, parentTree, targetCommit.Tree, staged.Tree)
		if err != nil {
			return err
		}
		modified.Tree = merged
		changed = true
	}

	if len(opts.messages) > 0 {
		var buf strings.Builder
		for _, line := range opts.messages {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
		modified.Message = []byte(buf.String())
		changed = true
	}

	if opts.edit {
		edited, err := (messageEditor{repo: repo}).EditMessage("target "+targetOID.Short(7), modified.Message)
		if err != nil {
			return err
		}
		modified.Message = edited
		changed = true
	}

	if opts.reauthor {
		modified.Author = rewrite.CurrentUser(repo.Bridge)
		changed = true
	}

	if opts.cut {
		changed = true
	}

	changeSignature := signatureChangeNeeded(repo, opts, append([]*object.Commit{targetCommit}, mustGetCommits(repo, toRebase)...))

	if !changed && !changeSignature {
		fmt.Fprintln(os.Stderr, "(warning) no changes performed")
		return nil
	}

	modifiedOID, err := repo.Store.NewCommit(&modified)
	if err != nil {
		return err
	}

	var parentOID object.Hash
	if len(targetCommit.Parents) > 0 {
		parentOID = targetCommit.Parents[0]
	}

	firstKind := todo.Pick
	if opts.cut {
		firstKind = todo.Cut
	}

	original := []todo.Step{{Kind: todo.Pick, Commit: targetOID}}
	edited := []todo.Step{{Kind: firstKind, Commit: modifiedOID}}
	for _, c := range toRebase {
		original = append(original, todo.Step{Kind: todo.Pick, Commit: c})
		edited = append(edited, todo.Step{Kind: todo.Pick, Commit: c})
	}

	newHead, err := col.engine.Apply(ctx, parentOID, original, edited)
	if err != nil {
		return err
	}

	printProgress(repo, newHead, original, edited)
	return landRef(repo, headRef, headOID, newHead)
}

func runInteractive(ctx context.Context, col *collaborators, opts options, headRef string, headOID object.Hash, staged *object.Commit) error {
	repo := col.repo

	var base object.Hash
	var toRebase []object.Hash
	var err error

	if opts.target != "" || opts.root {
		if opts.target != "" {
			base, err = revparse.Resolve(opts.target, repo, repo.Store)
			if err != nil {
				return err
			}
		}
		toRebase, err = rewrite.CommitRange(repo.Store, headOID, base)
		if err != nil {
			return err
		}
	} else {
		locals, err := repo.Bridge.LocalCommits(ctx, "HEAD")
		if err != nil {
			return err
		}
		if len(locals) == 0 {
			return reviseerr.New(reviseerr.BadRevision, "no local commits to rewrite; specify a target")
		}
		toRebase = locals
		first, err := repo.Store.GetCommit(locals[0])
		if err != nil {
			return err
		}
		if len(first.Parents) > 0 {
			base = first.Parents[0]
		}
	}

	var indexOID object.Hash
	if staged != nil {
		indexOID, err = repo.Store.NewCommit(staged)
		if err != nil {
			return err
		}
	}

	original := todo.BuildTodos(toRebase, indexOID)
	steps := original

	autosquash := opts.autosquash
	if !opts.noAutosquash && !opts.autosquash {
		autosquash = repo.AutoSquashEnabled()
	}
	if opts.noAutosquash {
		autosquash = false
	}
	if autosquash {
		resolve := func(spec string) (object.Hash, error) { return revparse.Resolve(spec, repo, repo.Store) }
		steps, err = todo.AutosquashTodos(steps, repo.Store, resolve)
		if err != nil {
			return err
		}
	}

	if opts.interactive {
		steps, err = editTodoInteractively(repo, steps, opts.edit)
		if err != nil {
			return err
		}
		if err := todo.ValidateTodos(original, steps); err != nil {
			return err
		}
	}

	if todoListsEqual(steps, original) {
		fmt.Fprintln(os.Stderr, "(warning) no changes performed")
		return nil
	}

	newHead, err := col.engine.Apply(ctx, base, original, steps)
	if err != nil {
		return err
	}

	printProgress(repo, newHead, original, steps)
	return landRef(repo, headRef, headOID, newHead)
}

func editTodoInteractively(repo *reviserepo.Repo, steps []todo.Step, msgedit bool) ([]todo.Step, error) {
	resolve := func(spec string) (object.Hash, error) { return revparse.Resolve(spec, repo, repo.Store) }

	if msgedit {
		rendered, err := todo.RenderMsgEdit(steps, repo.Store)
		if err != nil {
			return nil, err
		}
		edited, err := repo.RunEditor("revise-todo", rendered, reviserepo.EditOptions{
			Comments:                         msgeditHelp,
			AllowPrecedingWhitespaceComments: true,
			UseSequenceEditor:                true,
		})
		if err != nil {
			return nil, err
		}
		return todo.ParseMsgEdit(edited, steps, resolve, repo.Store)
	}

	rendered, err := todo.RenderCompact(steps, repo.Store)
	if err != nil {
		return nil, err
	}
	edited, err := repo.RunEditor("revise-todo", rendered, reviserepo.EditOptions{
		Comments:                         compactHelp,
		AllowPrecedingWhitespaceComments: true,
		UseSequenceEditor:                true,
	})
	if err != nil {
		return nil, err
	}
	return todo.ParseCompact(edited, steps, resolve, repo.Store)
}

const compactHelp = `
Rewrite commits by reordering or retagging the lines below.

Commands:
 p, pick <commit> = use commit
 f, fixup <commit> = fuse into previous commit, discard this message
 s, squash <commit> = fuse into previous commit, merge messages
 r, reword <commit> = use commit, edit the message
 c, cut <commit> = interactively split commit into two
 i, index <commit> = leave staged content in the index, no commit

Lines may be reordered. Deleting a line drops that commit's changes.`

const msgeditHelp = compactHelp + `

Each entry is followed by "++" and its full commit message, ending at
the next "++" line or end of file.`

func todoListsEqual(a, b []todo.Step) bool {
	return reflect.DeepEqual(a, b)
}

func signatureChangeNeeded(repo *reviserepo.Repo, opts options, commits []*object.Commit) bool {
	want := repo.GPGSignEnabled()
	if opts.gpgSign {
		want = true
	}
	if opts.noGPGSign {
		want = false
	}
	for _, c := range commits {
		if (c.GPGSig != "") != want {
			return true
		}
	}
	return false
}

func mustGetCommits(repo *reviserepo.Repo, oids []object.Hash) []*object.Commit {
	out := make([]*object.Commit, 0, len(oids))
	for _, oid := range oids {
		if c, err := repo.Store.GetCommit(oid); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// printProgress prints one "<short-oid> <summary>" line per commit
// created during this rewrite, newest first, matching noninteractive's
// per-step console trace.
func printProgress(repo *reviserepo.Repo, newHead object.Hash, original, edited []todo.Step) {
	yellow := color.New(color.FgYellow)
	steps := 0
	for _, s := range edited {
		if s.Kind != todo.Index {
			steps++
		}
	}

	cur := newHead
	for i := 0; i < steps && cur != ""; i++ {
		c, err := repo.Store.GetCommit(cur)
		if err != nil {
			break
		}
		yellow.Fprintf(os.Stderr, "%s ", cur.Short(7))
		fmt.Fprintln(os.Stderr, todo.Summary(c))
		if len(c.Parents) == 0 {
			break
		}
		cur = c.Parents[0]
	}
}

// resolveUpdateRef follows a symbolic "HEAD" to the branch ref it points
// at, so the compare-and-swap lands on the underlying branch (leaving the
// checkout attached) rather than detaching HEAD; a detached HEAD is left
// as-is (§4.7 step 4: "compare-and-swap refs/…/HEAD").
func resolveUpdateRef(repo *reviserepo.Repo, ref string) (string, error) {
	if ref != "HEAD" {
		return ref, nil
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(head, "refs/") {
		return head, nil
	}
	return "HEAD", nil
}

func landRef(repo *reviserepo.Repo, ref string, oldOID, newOID object.Hash) error {
	newCommit, err := repo.Store.GetCommit(newOID)
	if err != nil {
		return err
	}
	if err := repo.Store.Flush(newOID); err != nil {
		return err
	}
	updateRef, err := resolveUpdateRef(repo, ref)
	if err != nil {
		return err
	}
	reason := reviserepo.ReflogReason(oldOID, todo.Summary(newCommit))
	if err := repo.UpdateRefCAS(updateRef, oldOID, newOID, reason); err != nil {
		return err
	}
	return nil
}
