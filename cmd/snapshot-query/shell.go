package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"snapshot-query/internal/query"
	"snapshot-query/internal/render"

	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"
)

const historyFile = ".snapshot_query_history"

var shellCommands = []string{
	"find-name", "find-name-exact", "find-name-bm25", "find-role", "find-ref",
	"find-text", "find-grep", "find-selector", "interactive", "count", "path",
	"all-refs", "markdown", "datalog", "help", "quit",
}

const shellHelp = `Commands:
  find-name <text>             find-name-exact <text>
  find-name-bm25 <text> [k]    find-role <role>
  find-ref <ref>               find-text <text>
  find-grep <pattern> [field]  find-selector <selector>
  interactive                  count
  path <ref>                   all-refs
  markdown [max-depth]         datalog <query>
  help                         quit
`

var errQuit = errors.New("quit")

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:      "shell",
		Usage:     "Interactive prompt over one snapshot",
		ArgsUsage: "<file>",
		Action: withEnv(1, func(e *env, _ []string) error {
			return e.repl()
		}),
	}
}

func (e *env) repl() error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range shellCommands {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Fprintf(e.out, "%s: %d elements. Type help for commands.\n", e.engine.Source(), e.engine.Tree().Len())
	for {
		line, err := ln.Prompt("snapshot> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(e.out)
				break
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		if err := e.exec(context.Background(), line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintf(e.out, "error: %v\n", err)
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

// exec runs one shell line. Everything after the command word is a single
// argument unless the command takes an optional trailing one.
func (e *env) exec(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	need := func() error {
		if rest == "" {
			return fmt.Errorf("%s needs an argument", cmd)
		}
		return nil
	}

	switch cmd {
	case "help", "?":
		fmt.Fprint(e.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "find-name", "find-name-exact":
		if err := need(); err != nil {
			return err
		}
		return e.findName(rest, cmd == "find-name-exact")
	case "find-name-bm25":
		if err := need(); err != nil {
			return err
		}
		text, k := splitTrailingInt(rest)
		return e.findNameBM25(text, k)
	case "find-role":
		if err := need(); err != nil {
			return err
		}
		return e.findRole(rest)
	case "find-ref":
		if err := need(); err != nil {
			return err
		}
		return e.findRef(rest)
	case "find-text":
		if err := need(); err != nil {
			return err
		}
		return e.findText(rest, false)
	case "find-grep":
		if err := need(); err != nil {
			return err
		}
		pattern, field := rest, "name"
		if i := strings.LastIndex(rest, " "); i > 0 {
			switch last := rest[i+1:]; last {
			case "name", "role", "ref":
				pattern, field = strings.TrimSpace(rest[:i]), last
			}
		}
		return e.findGrep(pattern, field, false)
	case "find-selector":
		if err := need(); err != nil {
			return err
		}
		return e.findSelector(rest)
	case "interactive":
		return e.interactive()
	case "count":
		return e.count()
	case "path":
		if err := need(); err != nil {
			return err
		}
		return e.path(rest)
	case "all-refs":
		return e.allRefs()
	case "markdown":
		opts := render.DefaultMarkdownOptions()
		if rest != "" {
			depth, err := strconv.Atoi(rest)
			if err != nil {
				return fmt.Errorf("max-depth must be a number: %q", rest)
			}
			opts.MaxDepth = depth
		}
		return e.markdown(opts, false, "")
	case "datalog":
		if err := need(); err != nil {
			return err
		}
		return e.datalog(ctx, "", rest)
	default:
		return fmt.Errorf("unknown command %q (type help)", cmd)
	}
}

// splitTrailingInt splits "text 5" into ("text", 5); k is query.AllHits
// when the last word is not a number.
func splitTrailingInt(s string) (string, int) {
	i := strings.LastIndex(s, " ")
	if i < 0 {
		return s, query.AllHits
	}
	k, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return s, query.AllHits
	}
	return strings.TrimSpace(s[:i]), k
}
