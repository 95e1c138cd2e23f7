package main

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/odvcencio/revise/pkg/reviseerr"
	"github.com/odvcencio/revise/pkg/reviserepo"
)

// commitMsgHook runs the repository's commit-msg hook, if present and
// enabled (§4.7 "Hooks", §6 revise.run-hooks.commit-msg). A missing hook
// file is not an error; the hook is simply skipped.
type commitMsgHook struct {
	repo *reviserepo.Repo
}

func (h commitMsgHook) RunCommitMsg(message []byte) ([]byte, error) {
	hookPath := filepath.Join(h.repo.CommonDir, "hooks", "commit-msg")
	if st, err := os.Stat(hookPath); err != nil || st.IsDir() || st.Mode()&0o111 == 0 {
		return message, nil
	}

	f, err := os.CreateTemp("", "revise-commit-msg-*")
	if err != nil {
		return nil, err
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)
	if _, err := f.Write(message); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	cmd := exec.Command(hookPath, tmpPath)
	cmd.Dir = h.repo.RootDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, reviseerr.Wrap(reviseerr.UserAbort, "commit-msg hook rejected the message", err)
	}

	edited, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, err
	}
	return edited, nil
}
