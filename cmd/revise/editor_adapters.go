package main

import (
	"fmt"

	"github.com/odvcencio/revise/pkg/reviserepo"
)

// messageEditor adapts *reviserepo.Repo to pkg/rewrite's MessageEditor,
// appending a short label comment below whatever text the editor
// already carries (§4.2, §4.7).
type messageEditor struct {
	repo *reviserepo.Repo
}

func (m messageEditor) EditMessage(label string, initial []byte) ([]byte, error) {
	return m.repo.RunEditor("COMMIT_EDITMSG", initial, reviserepo.EditOptions{
		Comments: fmt.Sprintf("Please enter the commit message for: %s\nLines starting with the comment character will be ignored.", label),
	})
}

// conflictEditor adapts *reviserepo.Repo to pkg/treemerge's ConflictEditor.
type conflictEditor struct {
	repo *reviserepo.Repo
}

func (c conflictEditor) EditConflict(path string, conflicted []byte) ([]byte, error) {
	return c.repo.RunEditor(path, conflicted, reviserepo.EditOptions{
		Comments:   fmt.Sprintf("Conflict while merging %s.\nResolve the markers above and save to continue, or leave unresolved markers to abort.", path),
		AllowEmpty: true,
	})
}
