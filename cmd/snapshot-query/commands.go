package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"snapshot-query/internal/browser"
	"snapshot-query/internal/mangle"
	"snapshot-query/internal/render"
	"snapshot-query/internal/snapshot"

	"github.com/urfave/cli/v2"
)

func markdownCommand() *cli.Command {
	return &cli.Command{
		Name:      "markdown",
		Usage:     "Render the snapshot as a Markdown document",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to a file instead of stdout"},
			&cli.BoolFlag{Name: "no-refs", Usage: "Omit refs from the outline and tables"},
			&cli.IntFlag{Name: "max-depth", Value: -1, Usage: "Deepest tree level to render (-1 for no limit)"},
			&cli.BoolFlag{Name: "html", Usage: "Render HTML instead of Markdown"},
		},
		Action: func(c *cli.Context) error {
			return withEnv(1, func(e *env, _ []string) error {
				opts := render.DefaultMarkdownOptions()
				opts.IncludeRefs = !c.Bool("no-refs")
				opts.MaxDepth = c.Int("max-depth")
				return e.markdown(opts, c.Bool("html"), c.String("output"))
			})(c)
		},
	}
}

func (e *env) markdown(opts render.MarkdownOptions, html bool, output string) error {
	doc := render.Markdown(e.engine, opts)
	if html {
		var err error
		if doc, err = render.MarkdownToHTML(doc); err != nil {
			return err
		}
	}
	if output == "" {
		_, err := fmt.Fprint(e.out, doc)
		return err
	}
	if err := os.WriteFile(output, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(e.out, "wrote %s\n", output)
	return nil
}

func datalogCommand() *cli.Command {
	return &cli.Command{
		Name:      "datalog",
		Usage:     "Run a Datalog query over the snapshot",
		ArgsUsage: "<file> <query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rules", Aliases: []string{"r"}, Usage: "File with extra rules to load first"},
		},
		Action: func(c *cli.Context) error {
			return withEnv(2, func(e *env, args []string) error {
				rules := ""
				if path := c.String("rules"); path != "" {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("read rules: %w", err)
					}
					rules = string(data)
				}
				return e.datalog(c.Context, rules, strings.Join(args, " "))
			})(c)
		},
	}
}

func (e *env) datalog(ctx context.Context, rules, q string) error {
	mcfg := e.cfg.Mangle
	mcfg.Enable = true
	engine, err := mangle.NewEngine(mcfg)
	if err != nil {
		return err
	}
	if err := engine.LoadTree(ctx, e.engine.Tree()); err != nil {
		return err
	}
	if rules != "" {
		if err := engine.AddRule(ctx, rules); err != nil {
			return err
		}
	}
	results, err := engine.Query(ctx, q)
	if err != nil {
		return err
	}
	if e.json {
		return e.writeJSON(map[string]interface{}{"count": len(results), "results": results})
	}

	fmt.Fprintf(e.out, "%d results:\n", len(results))
	for _, r := range results {
		vars := make([]string, 0, len(r))
		for k := range r {
			vars = append(vars, k)
		}
		sort.Strings(vars)
		parts := make([]string, 0, len(vars))
		for _, k := range vars {
			parts = append(parts, fmt.Sprintf("%s=%v", k, r[k]))
		}
		fmt.Fprintf(e.out, "  %s\n", strings.Join(parts, " "))
	}
	return nil
}

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Capture a page's accessibility tree from Chrome",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the snapshot to a file instead of stdout"},
			&cli.StringFlag{Name: "debugger-url", Usage: "DevTools endpoint of a running Chrome"},
			&cli.StringFlag{Name: "chrome", Usage: "Chrome binary to launch"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return usageError(c)
			}
			cfg := configFrom(c).Browser
			if u := c.String("debugger-url"); u != "" {
				cfg.DebuggerURL = u
			}
			if bin := c.String("chrome"); bin != "" {
				cfg.Launch = []string{bin}
			}

			capturer := browser.NewCapturer(cfg)
			defer func() { _ = capturer.Shutdown(context.Background()) }()

			capture, err := capturer.Capture(c.Context, c.Args().First())
			if err != nil {
				return err
			}

			output := c.String("output")
			if output == "" {
				return snapshot.Encode(c.App.Writer, capture.Tree)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := snapshot.Encode(f, capture.Tree); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "captured %d elements from %s into %s\n", capture.Tree.Len(), capture.URL, output)
			return nil
		},
	}
}
