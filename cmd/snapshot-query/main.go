package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"snapshot-query/internal/config"
	"snapshot-query/internal/query"

	"github.com/urfave/cli/v2"
)

// Version is the CLI version reported by --version.
var Version = "0.3.0"

// Display limits for human-readable output.
const (
	roleLimit        = 10
	textLimit        = 10
	grepLimit        = 20
	selectorLimit    = 20
	interactiveLimit = 5
	refsLimit        = 50
	suggestionLimit  = 3
)

func main() {
	if err := run(os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	return newApp(stdout, stderr).Run(args)
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "snapshot-query",
		Usage:     "Query accessibility snapshot files",
		UsageText: "snapshot-query [global options] <command> <file> [args]",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Suggest:   true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (YAML, or TOML by extension)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
			&cli.BoolFlag{
				Name:  "no-workspace",
				Usage: "Skip .snapshot-query workspace discovery",
			},
		},
		Before: loadConfig,
		Commands: []*cli.Command{
			{
				Name:      "find-name",
				Usage:     "Find elements whose name contains text",
				ArgsUsage: "<file> <text>",
				Action:    withEnv(2, func(e *env, args []string) error { return e.findName(args[0], false) }),
			},
			{
				Name:      "find-name-exact",
				Usage:     "Find elements whose name equals text",
				ArgsUsage: "<file> <text>",
				Action:    withEnv(2, func(e *env, args []string) error { return e.findName(args[0], true) }),
			},
			{
				Name:      "find-name-bm25",
				Usage:     "Rank named elements by BM25 relevance",
				ArgsUsage: "<file> <text>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Value: query.AllHits, Usage: "Maximum results (default all)"},
				},
				Action: func(c *cli.Context) error {
					return withEnv(2, func(e *env, args []string) error {
						return e.findNameBM25(args[0], c.Int("top-k"))
					})(c)
				},
			},
			{
				Name:      "find-role",
				Usage:     "Find elements with a role",
				ArgsUsage: "<file> <role>",
				Action:    withEnv(2, func(e *env, args []string) error { return e.findRole(args[0]) }),
			},
			{
				Name:      "find-ref",
				Usage:     "Find the element with a ref",
				ArgsUsage: "<file> <ref>",
				Action:    withEnv(2, func(e *env, args []string) error { return e.findRef(args[0]) }),
			},
			{
				Name:      "find-text",
				Usage:     "Find elements whose name contains text, ignoring case",
				ArgsUsage: "<file> <text>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "case-sensitive", Aliases: []string{"s"}, Usage: "Match case"},
				},
				Action: func(c *cli.Context) error {
					return withEnv(2, func(e *env, args []string) error {
						return e.findText(args[0], c.Bool("case-sensitive"))
					})(c)
				},
			},
			{
				Name:      "find-grep",
				Usage:     "Find elements whose field matches a regular expression",
				ArgsUsage: "<file> <pattern>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Value: "name", Usage: "name, role or ref"},
					&cli.BoolFlag{Name: "case-sensitive", Aliases: []string{"s"}, Usage: "Match case"},
				},
				Action: func(c *cli.Context) error {
					return withEnv(2, func(e *env, args []string) error {
						return e.findGrep(args[0], c.String("field"), c.Bool("case-sensitive"))
					})(c)
				},
			},
			{
				Name:      "find-selector",
				Usage:     "Find elements with a CSS-like selector",
				ArgsUsage: "<file> <selector>",
				Action:    withEnv(2, func(e *env, args []string) error { return e.findSelector(args[0]) }),
			},
			{
				Name:      "interactive",
				Usage:     "List interactive elements by role",
				ArgsUsage: "<file>",
				Action:    withEnv(1, func(e *env, _ []string) error { return e.interactive() }),
			},
			{
				Name:      "count",
				Usage:     "Count elements per role",
				ArgsUsage: "<file>",
				Action:    withEnv(1, func(e *env, _ []string) error { return e.count() }),
			},
			{
				Name:      "path",
				Usage:     "Show the path from a root to an element",
				ArgsUsage: "<file> <ref>",
				Action:    withEnv(2, func(e *env, args []string) error { return e.path(args[0]) }),
			},
			{
				Name:      "all-refs",
				Usage:     "List every ref in document order",
				ArgsUsage: "<file>",
				Action:    withEnv(1, func(e *env, _ []string) error { return e.allRefs() }),
			},
			markdownCommand(),
			datalogCommand(),
			captureCommand(),
			shellCommand(),
			{
				Name:  "init",
				Usage: "Create a .snapshot-query workspace in the current directory",
				Action: func(c *cli.Context) error {
					if err := config.InitWorkspace("."); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "created %s\n", config.WorkspaceDirName)
					return nil
				},
			},
		},
	}
}

const configKey = "config"

func loadConfig(c *cli.Context) error {
	cfg, _, err := config.LoadWithWorkspace(c.String("config"), config.WorkspaceOptions{Disable: c.Bool("no-workspace")})
	if err != nil {
		return err
	}
	c.App.Metadata = map[string]interface{}{configKey: cfg}
	return nil
}

func configFrom(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[configKey].(config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

// withEnv loads the snapshot named by the first argument and passes the
// remaining arguments to fn. want counts the file.
func withEnv(want int, fn func(e *env, args []string) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < want {
			return usageError(c)
		}
		e, err := openEnv(configFrom(c), c.Args().First(), c.App.Writer, c.Bool("json"))
		if err != nil {
			return err
		}
		return fn(e, c.Args().Slice()[1:])
	}
}

func usageError(c *cli.Context) error {
	return errors.New("usage: snapshot-query " + c.Command.Name + " " + c.Command.ArgsUsage)
}
