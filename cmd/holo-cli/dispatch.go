package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/irino/holo-cli/pkg/cmdtree"
	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/parser"
	"github.com/irino/holo-cli/pkg/session"
)

// pipeFilterDescs maps pipe filter names to descriptions for ? help.
var pipeFilterDescs = map[string]string{
	"compare": "Show differences from the running configuration",
	"count":   "Count lines of output",
	"display": "Show additional kinds of information",
	"except":  "Show only text that does not match a pattern",
	"find":    "Search for first occurrence of pattern",
	"last":    "Display end of output only",
	"match":   "Show only text that matches a pattern",
	"no-more": "Don't paginate output",
}

func (c *ctl) dispatch(line string) error {
	if cmd, pipeType, pipeArg, ok := extractPipe(line); ok {
		return c.dispatchWithPipe(cmd, pipeType, pipeArg)
	}
	pcmd, err := parser.Parse(c.tree(), line, c.sess.Context())
	if err != nil {
		return err
	}
	return c.execute(pcmd)
}

// extractPipe splits a line at the last "| <filter>" expression.
func extractPipe(line string) (string, string, string, bool) {
	idx := strings.LastIndex(line, " | ")
	if idx < 0 {
		return line, "", "", false
	}
	cmd := strings.TrimSpace(line[:idx])
	pipe := strings.TrimSpace(line[idx+3:])
	parts := strings.SplitN(pipe, " ", 2)
	pipeType := parts[0]
	var pipeArg string
	if len(parts) > 1 {
		pipeArg = parts[1]
	}
	switch pipeType {
	case "match", "except", "find", "count", "last", "no-more", "compare", "display":
		return cmd, pipeType, pipeArg, true
	default:
		return line, "", "", false
	}
}

// dispatchWithPipe runs the command with stdout captured and applies
// the pipe filter. "compare" and "display set" are not line filters:
// they reformat a configuration show and are handled up front.
func (c *ctl) dispatchWithPipe(cmd, pipeType, pipeArg string) error {
	switch pipeType {
	case "compare":
		return c.showCompare(cmd)
	case "display":
		if pipeArg != "set" {
			return fmt.Errorf("unknown display format %q", pipeArg)
		}
		return c.showDisplaySet(cmd)
	}

	output, cmdErr := captureStdout(func() error {
		return c.dispatch(cmd)
	})
	origStdout := os.Stdout

	lines := strings.Split(output, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	switch pipeType {
	case "match":
		lp := strings.ToLower(pipeArg)
		for _, line := range lines {
			if strings.Contains(strings.ToLower(line), lp) {
				fmt.Fprintln(origStdout, line)
			}
		}
	case "except":
		lp := strings.ToLower(pipeArg)
		for _, line := range lines {
			if !strings.Contains(strings.ToLower(line), lp) {
				fmt.Fprintln(origStdout, line)
			}
		}
	case "find":
		lp := strings.ToLower(pipeArg)
		found := false
		for _, line := range lines {
			if !found && strings.Contains(strings.ToLower(line), lp) {
				found = true
			}
			if found {
				fmt.Fprintln(origStdout, line)
			}
		}
	case "count":
		fmt.Fprintf(origStdout, "Count: %d lines\n", len(lines))
	case "last":
		n := 10
		if pipeArg != "" {
			if v, err := strconv.Atoi(pipeArg); err == nil && v > 0 {
				n = v
			}
		}
		start := len(lines) - n
		if start < 0 {
			start = 0
		}
		for _, line := range lines[start:] {
			fmt.Fprintln(origStdout, line)
		}
	case "no-more":
		for _, line := range lines {
			fmt.Fprintln(origStdout, line)
		}
	}
	return cmdErr
}

// captureStdout runs fn with os.Stdout redirected into a pipe and
// returns everything it wrote. The pipe is drained concurrently so
// output larger than the kernel pipe buffer cannot block fn.
func captureStdout(fn func() error) (string, error) {
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("pipe: %w", err)
	}
	os.Stdout = w

	outCh := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(r)
		r.Close()
		outCh <- b
	}()

	fnErr := fn()
	w.Close()
	os.Stdout = orig
	return string(<-outCh), fnErr
}

// showCompare handles "show ... | compare".
func (c *ctl) showCompare(cmd string) error {
	pcmd, err := parser.Parse(c.tree(), cmd, c.sess.Context())
	if err != nil {
		return err
	}
	if pcmd.Cmd != cmdtree.CmdShow {
		return fmt.Errorf("| compare applies to show in configuration mode")
	}
	out, err := c.sess.Store().ShowCompare()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// showDisplaySet handles "show ... | display set".
func (c *ctl) showDisplaySet(cmd string) error {
	pcmd, err := parser.Parse(c.tree(), cmd, c.sess.Context())
	if err != nil {
		return err
	}
	if pcmd.Cmd != cmdtree.CmdShow {
		return fmt.Errorf("| display set applies to show in configuration mode")
	}
	out, err := c.sess.Store().ShowCandidateSet()
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func (c *ctl) execute(pcmd *parser.Command) error {
	switch pcmd.Cmd {
	case cmdtree.CmdConfigure:
		if err := c.sess.EnterConfig(c.ctx()); err != nil {
			return err
		}
		fmt.Println("Entering configuration mode")
		return nil

	case cmdtree.CmdQuit:
		return errExit

	case cmdtree.CmdExit:
		if err := c.sess.ExitConfig(false); err != nil {
			return err
		}
		fmt.Println("Exiting configuration mode")
		return nil

	case cmdtree.CmdShowVersion:
		version, err := c.backend.Version(c.ctx())
		if err != nil {
			return err
		}
		fmt.Printf("holod %s\n", version)
		return nil

	case cmdtree.CmdShowConfiguration:
		running, err := c.backend.GetConfig(c.ctx())
		if err != nil {
			return err
		}
		fmt.Print(running.Format())
		return nil

	case cmdtree.CmdShowLog:
		n := 64
		if arg, ok := pcmd.Args["n"]; ok {
			v, err := strconv.Atoi(arg)
			if err != nil || v <= 0 {
				return fmt.Errorf("show cli log: invalid count %q", arg)
			}
			n = v
		}
		for _, e := range c.ring.Last(n) {
			fmt.Println(e)
		}
		return nil

	case cmdtree.CmdShowCommits:
		entries := c.sess.Store().HistoryList()
		if len(entries) == 0 {
			fmt.Println("(no commits)")
			return nil
		}
		// Indices match the rollback argument: 1 is the most recent.
		for i, e := range entries {
			fmt.Printf("%-3d %s", i+1, e.Timestamp.Format("2006-01-02 15:04:05"))
			if e.Comment != "" {
				fmt.Printf("  %s", e.Comment)
			}
			fmt.Println()
		}
		return nil

	case cmdtree.CmdShowState:
		return c.showState(pcmd.Path)

	case cmdtree.CmdMonitorState:
		return c.monitorState()

	case cmdtree.CmdSet:
		return c.sess.Set(pcmd.Leaf, pcmd.Path, pcmd.Value)

	case cmdtree.CmdDelete:
		val := ""
		if pcmd.HasValue {
			val = pcmd.Value
		}
		return c.sess.Delete(pcmd.Path, val)

	case cmdtree.CmdEdit:
		ctx := c.sess.Context()
		return c.sess.Descend(pcmd.Path[len(ctx):])

	case cmdtree.CmdUp:
		c.sess.Ascend()
		return nil

	case cmdtree.CmdTop:
		c.sess.Top()
		return nil

	case cmdtree.CmdShow:
		out, err := c.sess.Store().ShowCandidate(pcmd.Path)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case cmdtree.CmdCommit:
		ctx := c.ctx()
		if c.commitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.commitTimeout)
			defer cancel()
		}
		err := c.sess.Commit(ctx, pcmd.Args["comment"])
		if err == session.ErrNoChanges {
			fmt.Println("nothing to commit")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("commit complete")
		return nil

	case cmdtree.CmdCommitCheck:
		if err := c.sess.CommitCheck(c.ctx()); err != nil {
			return err
		}
		fmt.Println("configuration check succeeds")
		return nil

	case cmdtree.CmdRollback:
		n := 0
		if arg, ok := pcmd.Args["n"]; ok {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 0 {
				return fmt.Errorf("rollback: invalid argument %q", arg)
			}
			n = v
		}
		if err := c.sess.Rollback(n); err != nil {
			return err
		}
		fmt.Println("load complete")
		return nil

	case cmdtree.CmdDiscard:
		if err := c.sess.Discard(); err != nil {
			return err
		}
		fmt.Println("changes discarded")
		return nil

	default:
		return fmt.Errorf("unhandled command")
	}
}

// showState fetches operational state under path and renders it as a
// table.
func (c *ctl) showState(path configtree.Path) error {
	entries, err := c.backend.GetState(c.ctx(), pathTokens(path))
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("(no state)")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Path", "Value"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Path, e.Value})
	}
	t.Render()
	return nil
}

// monitorState streams state deltas until the command is cancelled.
func (c *ctl) monitorState() error {
	ctx := c.ctx()
	ch, err := c.backend.SubscribeState(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Println("monitoring state changes, press Ctrl-C to stop")
	for delta := range ch {
		if delta.Deleted {
			fmt.Printf("- %s\n", delta.Path)
		} else {
			fmt.Printf("  %s = %s\n", delta.Path, delta.Value)
		}
	}
	return ctx.Err()
}

func pathTokens(p configtree.Path) []string {
	var tokens []string
	for _, e := range p {
		tokens = append(tokens, e.Name)
		tokens = append(tokens, e.Keys...)
	}
	return tokens
}

// printError reports a command failure, suggesting a close keyword for
// unknown tokens.
func (c *ctl) printError(err error, line string) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	c.log.Debug("command failed", "line", line, "err", err)

	serr, ok := err.(*parser.SyntaxError)
	if !ok || serr.Got == "" {
		return
	}
	best := ""
	bestDist := 3 // only suggest near misses
	for _, cand := range serr.Expected {
		if strings.HasPrefix(cand, "<") {
			continue
		}
		if d := levenshtein.ComputeDistance(serr.Got, cand); d < bestDist {
			best, bestDist = cand, d
		}
	}
	if best != "" {
		fmt.Fprintf(os.Stderr, "       did you mean %q?\n", best)
	}
}
