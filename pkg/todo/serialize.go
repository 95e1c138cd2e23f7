package todo

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/odvcencio/revise/pkg/reviseerr"
)

// RenderCompact serializes todos as the plain "<kind> <short-oid>
// <summary>" lines the sequence editor sees (§4.6, §6): one line per
// step, summary appended only as a hint for the user and ignored on
// re-parse.
func RenderCompact(todos []Step, commits CommitStore) ([]byte, error) {
	var buf bytes.Buffer
	for _, step := range todos {
		c, err := commits.GetCommit(step.Commit)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%s %s\n", step, Summary(c))
	}
	return buf.Bytes(), nil
}

// ParseCompact parses RenderCompact's format back into steps, ignoring
// blank lines and validating the result against original via
// ValidateTodos.
func ParseCompact(data []byte, original []Step, resolve Resolver, commits CommitStore) ([]Step, error) {
	var result []Step
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		step, err := ParseStep(line, resolve, commits)
		if err != nil {
			return nil, err
		}
		result = append(result, step)
	}
	if err := ValidateTodos(original, result); err != nil {
		return nil, err
	}
	return result, nil
}

var msgEditBlockPattern = regexp.MustCompile(`(?m)^\+\+ `)

// RenderMsgEdit serializes todos as "++ <kind> <short-oid>\n<message>\n"
// blocks (§4.6): the full commit message follows each command line, so
// editing it here reschedules the message override that ParseMsgEdit
// will feed back as Step.Message.
func RenderMsgEdit(todos []Step, commits CommitStore) ([]byte, error) {
	var buf bytes.Buffer
	for _, step := range todos {
		c, err := commits.GetCommit(step.Commit)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "++ %s\n", step)
		buf.Write(c.Message)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ParseMsgEdit parses RenderMsgEdit's format back into steps, each
// carrying the (possibly edited) commit message as Step.Message.
func ParseMsgEdit(data []byte, original []Step, resolve Resolver, commits CommitStore) ([]Step, error) {
	blocks := msgEditBlockPattern.Split(string(data), -1)
	var result []Step
	for _, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		parts := strings.SplitN(block, "\n", 2)
		if len(parts) != 2 {
			return nil, reviseerr.New(reviseerr.TodoInvalid, fmt.Sprintf("todo block %q missing message body", block))
		}
		step, err := ParseStep(parts[0], resolve, commits)
		if err != nil {
			return nil, err
		}
		msg := strings.TrimRight(parts[1], "\n") + "\n"
		step.Message = []byte(msg)
		result = append(result, step)
	}
	if err := ValidateTodos(original, result); err != nil {
		return nil, err
	}
	return result, nil
}
