package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/config"
	"github.com/memvra/dtwin/internal/mcp"
	"github.com/memvra/dtwin/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr  string
		store string
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the twin over HTTP",
		Long: `Start the HTTP API: sessions, chat turns, document uploads and memory
inspection. Sessions live in process memory unless server.session_store
is "redis".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			if addr == "" {
				addr = ws.cfg.Server.Addr
			}
			if store == "" {
				store = ws.cfg.Server.SessionStore
			}

			orch, err := ws.orchestrator(nil)
			if err != nil {
				return err
			}
			pipe, err := ws.pipeline()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessions, closeStore, err := openSessionStore(ctx, store, ws.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := server.New(server.Deps{
				Turner:   orch,
				Sessions: sessions,
				Ingester: pipe,
				Uploads:  ws.uploads,
				Memory:   ws.store,
				DB:       ws.db,
				Version:  version,
				Quiet:    quiet,
			})

			fmt.Printf("Serving %s on %s (sessions: %s). Press Ctrl-C to stop.\n", ws.name(), addr, store)
			return srv.Listen(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default: server.addr, :8080)")
	cmd.Flags().StringVar(&store, "session-store", "", "session store: memory or redis (default: server.session_store)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable request logging")

	return cmd
}

// openSessionStore returns the configured store and a close func.
func openSessionStore(ctx context.Context, kind string, cfg config.Config) (server.SessionStore, func(), error) {
	switch kind {
	case "", "memory":
		return server.NewMemorySessionStore(), func() {}, nil
	case "redis":
		ttl, err := time.ParseDuration(cfg.Server.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("server.session_ttl %q: %w", cfg.Server.SessionTTL, err)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return server.NewRedisSessionStore(client, ttl), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q (valid: memory, redis)", kind)
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the twin as MCP tools over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the chat,
search, remember, ingest, list_uploads and memory_stats tools.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			deps := mcp.Deps{
				Searcher: ws.retriever,
				Writer:   ws.writer,
				Uploads:  ws.uploads,
				Memory:   ws.store,
				Version:  version,
			}
			// Chat and ingest need a chat key; the rest work without one.
			if orch, err := ws.orchestrator(nil); err == nil {
				deps.Turner = orch
			} else {
				warn("chat tool disabled: %v", err)
			}
			if pipe, err := ws.pipeline(); err == nil {
				deps.Ingester = pipe
			} else {
				warn("ingest tool disabled: %v", err)
			}

			return mcp.NewServer(deps).ServeStdio()
		},
	}
}
