// Command server runs the mcp-agent-mail coordination engine: the MCP tool
// and resource dispatcher over stdio or streamable HTTP (spec §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dicklesworthstone/agentmail/internal/config"
	"github.com/dicklesworthstone/agentmail/internal/content"
	"github.com/dicklesworthstone/agentmail/internal/logger"
	"github.com/dicklesworthstone/agentmail/internal/mcp"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve-stdio":
		runServeStdio(os.Args[2:])
	case "serve-http":
		runServeHTTP(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println(`mcp-agent-mail server

Usage:
  server serve-stdio
  server serve-http [--host H] [--port P] [--no-auth]

Environment: DATABASE_URL, STORAGE_ROOT, HTTP_HOST, HTTP_PORT,
HTTP_BEARER_TOKEN, HTTP_ALLOW_LOCALHOST_UNAUTHENTICATED,
HTTP_RATE_LIMIT_ENABLED, WORKTREES_ENABLED.`)
}

func openEngine(cfg *config.Config) (*store.DB, *content.Store, *mcp.Server, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	blobs, err := content.New(db, cfg.StorageRoot)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("opening content store: %w", err)
	}
	srv, err := mcp.New(db, blobs, cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("constructing server: %w", err)
	}
	return db, blobs, srv, nil
}

func runServeStdio(args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	db, _, srv, err := openEngine(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ServeStdio(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func runServeHTTP(args []string) {
	fs := flag.NewFlagSet("serve-http", flag.ExitOnError)
	host := fs.String("host", "", "bind host, overrides HTTP_HOST")
	port := fs.Int("port", 0, "bind port, overrides HTTP_PORT")
	noAuth := fs.Bool("no-auth", false, "disable bearer token enforcement (loopback bypass implied)")
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	if *host != "" {
		cfg.HTTPHost = *host
	}
	if *port != 0 {
		cfg.HTTPPort = *port
	}
	if *noAuth {
		cfg.AllowLocalhost = true
		cfg.BearerToken = ""
	}

	if err := logger.Init(cfg.StorageRoot); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Close() }()

	db, _, srv, err := openEngine(cfg)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer func() { _ = db.Close() }()
	defer srv.Close()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() { serverErr <- srv.Serve(addr) }()

	select {
	case err := <-serverErr:
		logger.Fatalf("server error: %v", err)
	case sig := <-shutdownChan:
		logger.Printf("received signal %v, shutting down", sig)
		srv.Close()
		_ = db.Close()
		os.Exit(0)
	}
}
