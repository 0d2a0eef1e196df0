package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/irino/holo-cli/pkg/client"
	"github.com/irino/holo-cli/pkg/cmdtree"
	"github.com/irino/holo-cli/pkg/logging"
	"github.com/irino/holo-cli/pkg/parser"
	"github.com/irino/holo-cli/pkg/schema"
	"github.com/irino/holo-cli/pkg/session"
)

var errExit = fmt.Errorf("exit")

// ctl drives the interactive shell: one readline loop, one session.
type ctl struct {
	rl      *readline.Instance
	sess    *session.Session
	backend client.Client
	model   *schema.Model
	opTree  *cmdtree.Tree
	cfgTree *cmdtree.Tree
	ring    *logging.Ring
	log     *slog.Logger

	hostname      string
	username      string
	commitTimeout time.Duration

	// Command cancellation: Ctrl-C during a running command cancels it.
	cmdMu     sync.Mutex
	cmdCtx    context.Context
	cmdCancel context.CancelFunc
}

// tree returns the command grammar for the session's current mode.
func (c *ctl) tree() *cmdtree.Tree {
	switch c.sess.State() {
	case session.StateConfiguration, session.StateCommitting:
		return c.cfgTree
	}
	return c.opTree
}

func (c *ctl) run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     historyFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    &completer{ctl: c},
		Stdin:           os.Stdin,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		Listener:        readline.FuncListener(c.helpListener),
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()
	c.rl = rl

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	version, err := c.backend.Version(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("cannot reach daemon at %s: %w", flagAddr, err)
	}
	fmt.Printf("holo-cli — connected to holod %s\n", version)
	fmt.Println("Type '?' for help")
	fmt.Println()

	// First Ctrl-C cancels a running command; a second within 2s, with
	// nothing running, exits the shell.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	var lastInterrupt time.Time
	go func() {
		for range sigCh {
			if c.cancelCmd() {
				fmt.Fprintln(os.Stderr, "\n^C (command cancelled)")
				continue
			}
			now := time.Now()
			if now.Sub(lastInterrupt) < 2*time.Second {
				c.sess.Close()
				os.Exit(0)
			}
			lastInterrupt = now
			fmt.Fprintln(os.Stderr, "\n^C (press again within 2s to exit)")
			rl.Refresh()
		}
	}()

	for {
		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				// Ctrl-D leaves configuration mode first, then the CLI.
				if c.sess.State() == session.StateConfiguration {
					if exitErr := c.sess.ExitConfig(false); exitErr != nil {
						fmt.Fprintf(os.Stderr, "error: %v\n", exitErr)
						continue
					}
					fmt.Println("\nExiting configuration mode")
					continue
				}
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		c.startCmd()
		err = c.dispatch(line)
		c.endCmd()
		if err != nil {
			if err == errExit {
				break
			}
			if err == context.Canceled {
				continue
			}
			c.printError(err, line)
		}
	}

	return c.sess.Close()
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.holo-cli_history"
}

// --- Prompts ---

func (c *ctl) prompt() string {
	if c.sess.State() == session.StateConfiguration {
		edit := "[edit]"
		if ctx := c.sess.Context(); len(ctx) > 0 {
			edit = fmt.Sprintf("[edit %s]", ctx)
		}
		return fmt.Sprintf("%s\n%s@%s# ", edit, c.username, c.hostname)
	}
	return fmt.Sprintf("%s@%s> ", c.username, c.hostname)
}

// --- Command cancellation ---

func (c *ctl) startCmd() {
	c.cmdMu.Lock()
	c.cmdCtx, c.cmdCancel = context.WithCancel(context.Background())
	c.cmdMu.Unlock()
}

func (c *ctl) endCmd() {
	c.cmdMu.Lock()
	if c.cmdCancel != nil {
		c.cmdCancel()
	}
	c.cmdCtx = nil
	c.cmdCancel = nil
	c.cmdMu.Unlock()
}

// ctx returns the current command context, or background if none.
func (c *ctl) ctx() context.Context {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if c.cmdCtx != nil {
		return c.cmdCtx
	}
	return context.Background()
}

// cancelCmd cancels any running command. Returns true if one was.
func (c *ctl) cancelCmd() bool {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	if c.cmdCancel != nil {
		c.cmdCancel()
		return true
	}
	return false
}

// --- Completion ---

type completer struct {
	ctl *ctl
}

func (cc *completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])

	if names, partial, ok := pipeCompletion(text); ok {
		return insertCandidates(cc.ctl, names, nil, partial)
	}

	sug := parser.Complete(cc.ctl.tree(), text, cc.ctl.sess.Context())
	if len(sug) == 0 {
		return nil, 0
	}
	partial := ""
	if !parser.EndsInSpace(text) {
		words := strings.Fields(text)
		if len(words) > 0 {
			partial = words[len(words)-1]
		}
	}
	var names []string
	descs := make(map[string]string)
	for _, s := range sug {
		if !s.Literal {
			continue
		}
		names = append(names, s.Text)
		descs[s.Text] = s.Desc
	}
	return insertCandidates(cc.ctl, names, descs, partial)
}

func insertCandidates(c *ctl, names []string, descs map[string]string, partial string) ([][]rune, int) {
	if len(names) == 0 {
		return nil, 0
	}
	sort.Strings(names)

	if len(names) == 1 {
		suffix := names[0][len(partial):]
		return [][]rune{[]rune(suffix + " ")}, len(partial)
	}

	// Multiple matches: show descriptions above the prompt, insert the
	// common prefix.
	candidates := make([]cmdtree.Candidate, len(names))
	for i, name := range names {
		candidates[i] = cmdtree.Candidate{Name: name, Desc: descs[name]}
	}
	cmdtree.WriteHelp(c.rl.Stdout(), candidates)

	cp := cmdtree.CommonPrefix(names)
	suffix := cp[len(partial):]
	if suffix == "" {
		return nil, 0
	}
	return [][]rune{[]rune(suffix)}, len(partial)
}

// pipeCompletion handles completion after a "|": the candidates are
// the pipe filters, not grammar tokens.
func pipeCompletion(text string) ([]string, string, bool) {
	idx := strings.LastIndex(text, "|")
	if idx < 0 {
		return nil, "", false
	}
	after := strings.TrimLeft(text[idx+1:], " ")
	partial := ""
	if !parser.EndsInSpace(text) && after != "" {
		partial = after
	}
	var names []string
	for name := range pipeFilterDescs {
		if strings.HasPrefix(name, partial) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, partial, true
}

// helpListener implements the '?' key: it strips the typed '?' and
// prints the candidates for the current position.
func (c *ctl) helpListener(line []rune, pos int, key rune) ([]rune, int, bool) {
	if key != '?' || pos < 1 {
		return line, pos, false
	}
	// Strip the '?' that readline already inserted.
	cleanLine := make([]rune, 0, len(line)-1)
	cleanLine = append(cleanLine, line[:pos-1]...)
	cleanLine = append(cleanLine, line[pos:]...)
	text := string(cleanLine[:pos-1])

	var candidates []cmdtree.Candidate
	if names, _, ok := pipeCompletion(text); ok {
		for _, name := range names {
			candidates = append(candidates, cmdtree.Candidate{Name: name, Desc: pipeFilterDescs[name]})
		}
	} else {
		for _, s := range parser.Complete(c.tree(), text, c.sess.Context()) {
			candidates = append(candidates, cmdtree.Candidate{Name: s.Text, Desc: s.Desc})
		}
	}
	if len(candidates) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "  (no help available)")
		return cleanLine, pos - 1, true
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	cmdtree.WriteHelp(c.rl.Stdout(), candidates)
	return cleanLine, pos - 1, true
}
