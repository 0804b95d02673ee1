// Package approval provides a trivial terminal ApprovalSystem
// (hookresult.ApprovalSystem): prints the prompt and its options to a
// writer and reads a line from a reader. Good enough for a local CLI
// session; a real deployment mounts something richer here.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amplifier-ai/kernel/kernel/hookresult"
)

// Terminal is a line-oriented ApprovalSystem reading from in and writing
// prompts to out.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// New constructs a Terminal. A nil in defaults to an always-EOF reader (so
// every request falls through to its configured default); a nil out
// discards prompt output.
func New(in io.Reader, out io.Writer) *Terminal {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// RequestApproval writes prompt plus its options, then blocks on one line
// of input (y/yes allows, n/no denies, empty falls back to def) or ctx
// cancellation/timeout, whichever comes first.
func (t *Terminal) RequestApproval(ctx context.Context, prompt string, options []string, timeout time.Duration, def hookresult.ApprovalDefault) (hookresult.ApprovalOutcome, error) {
	fmt.Fprintf(t.out, "%s", prompt)
	if len(options) > 0 {
		fmt.Fprintf(t.out, " [%s]", strings.Join(options, "/"))
	}
	fmt.Fprint(t.out, "\n> ")

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		if err != nil && line == "" {
			errCh <- err
			return
		}
		lineCh <- strings.TrimSpace(line)
	}()

	deadline := ctx.Done()
	var timer *time.Timer
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
	}

	select {
	case line := <-lineCh:
		return parseAnswer(line, def), nil
	case <-errCh:
		return defaultOutcome(def), nil
	case <-deadline:
		return hookresult.ApprovalOutcomeTimedOut, ctx.Err()
	case <-timerC(timer):
		return hookresult.ApprovalOutcomeTimedOut, nil
	}
}

func timerC(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

func parseAnswer(line string, def hookresult.ApprovalDefault) hookresult.ApprovalOutcome {
	switch strings.ToLower(line) {
	case "y", "yes":
		return hookresult.ApprovalOutcomeAllowed
	case "n", "no":
		return hookresult.ApprovalOutcomeDenied
	case "":
		return defaultOutcome(def)
	default:
		return defaultOutcome(def)
	}
}

func defaultOutcome(def hookresult.ApprovalDefault) hookresult.ApprovalOutcome {
	if def == hookresult.ApprovalAllow {
		return hookresult.ApprovalOutcomeAllowed
	}
	return hookresult.ApprovalOutcomeDenied
}
