package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"snapshot-query/internal/browser"
	"snapshot-query/internal/config"
	"snapshot-query/internal/mangle"
	mcpserver "snapshot-query/internal/mcp"
	"snapshot-query/internal/recorder"
)

func main() {
	configPath := flag.String("config", "", "Path to a config file (YAML, or TOML by extension)")
	ssePort := flag.Int("sse-port", 0, "Optional SSE port override (falls back to config)")
	noWorkspace := flag.Bool("no-workspace", false, "Skip .snapshot-query workspace discovery")
	initWorkspace := flag.Bool("init", false, "Create a .snapshot-query workspace in the current directory and exit")
	flag.Parse()

	if *initWorkspace {
		if err := config.InitWorkspace("."); err != nil {
			log.Fatalf("init workspace: %v", err)
		}
		log.Printf("created %s", config.WorkspaceDirName)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{Disable: *noWorkspace})
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// stderr interferes with the stdio protocol
	if cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}
	if wsDir != "" {
		log.Printf("using workspace %s", wsDir)
	}

	server, cleanup, err := newServer(cfg)
	if err != nil {
		log.Fatalf("failed to initialize MCP server: %v", err)
	}
	defer cleanup()

	var startErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting %s MCP SSE server on port %d", cfg.Server.Name, cfg.MCP.SSEPort)
		startErr = server.StartSSE(ctx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting %s MCP stdio server", cfg.Server.Name)
		startErr = server.Start(ctx)
	}

	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		log.Fatalf("server exited with error: %v", startErr)
	}
}

// newServer wires the Mangle engine, optional capturer and trace recorder
// into an MCP server. cleanup releases the browser and trace file.
func newServer(cfg config.Config) (*mcpserver.Server, func(), error) {
	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		return nil, nil, err
	}

	var rec *recorder.Recorder
	if cfg.Server.EnableTrace {
		rec, err = recorder.NewRecorder(cfg.Server.TraceDir)
		if err != nil {
			return nil, nil, err
		}
		if err := rec.Start("mcp"); err != nil {
			return nil, nil, err
		}
		log.Printf("tracing tool calls to %s", rec.Path())
	}

	var capturer *browser.Capturer
	if cfg.Browser.CanCapture() {
		capturer = browser.NewCapturer(cfg.Browser)
	} else {
		log.Printf("browser capture disabled; set browser.debugger_url or browser.launch to enable")
	}

	server, err := mcpserver.NewServer(cfg, engine, capturer, rec)
	if err != nil {
		_ = rec.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if capturer != nil {
			_ = capturer.Shutdown(context.Background())
		}
		_ = rec.Close()
	}
	return server, cleanup, nil
}
