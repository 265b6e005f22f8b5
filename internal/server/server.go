// Package server exposes the twin over HTTP: sessions, chat turns, document
// uploads and memory inspection.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
	"github.com/memvra/dtwin/internal/twin"
)

const defaultSampleLimit = 5

// Turner runs one chat turn.
type Turner interface {
	HandleTurn(ctx context.Context, state twin.SessionState, input string) (twin.SessionState, twin.TurnResult)
}

// Ingester ingests uploaded files.
type Ingester interface {
	IngestBatch(ctx context.Context, paths []string, opts ingest.Options, progress ingest.ProgressFunc) []ingest.FileResult
}

// MemoryInspector reads namespace statistics and samples.
type MemoryInspector interface {
	Stats(ctx context.Context, namespace string) (memory.Stats, error)
	Sample(ctx context.Context, namespace string, n int) ([]memory.Record, error)
}

// Pinger checks a backing service.
type Pinger interface {
	Ping() error
}

// Deps wires a Server. Ingester, Uploads, Memory and DB are optional; the
// routes that need them answer 503 when missing.
type Deps struct {
	Turner   Turner
	Sessions SessionStore
	Ingester Ingester
	Uploads  *ingest.UploadLog
	Memory   MemoryInspector
	DB       Pinger
	Version  string
	// UploadDir receives multipart files before ingestion. Defaults to a
	// temp directory per request.
	UploadDir string
	Quiet     bool
}

// Server holds the handlers.
type Server struct {
	deps  Deps
	locks sessionLocks
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Sessions == nil {
		deps.Sessions = NewMemorySessionStore()
	}
	return &Server{deps: deps}
}

// App builds the fiber app with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "dtwin",
		DisableStartupMessage: true,
		BodyLimit:             50 * 1024 * 1024, // documents
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))
	if !s.deps.Quiet {
		app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${reqHeader:X-Request-ID}\n",
			TimeFormat: "2006-01-02 15:04:05",
			TimeZone:   "Local",
		}))
	}

	app.Get("/health", s.health)
	s.RegisterRoutes(app.Group("/api"))
	return app
}

// RegisterRoutes mounts the API on router.
func (s *Server) RegisterRoutes(router fiber.Router) {
	sessions := router.Group("/sessions")
	sessions.Post("/", s.createSession)
	sessions.Get("/:id", s.getSession)
	sessions.Delete("/:id", s.deleteSession)
	sessions.Post("/:id/messages", s.postMessage)
	sessions.Post("/:id/uploads", s.postUploads)

	router.Get("/uploads", s.listUploads)
	router.Get("/memory/:namespace", s.memoryStats)
}

// Listen serves until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	app := s.App()
	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) health(c *fiber.Ctx) error {
	health := fiber.Map{
		"status":    "healthy",
		"service":   "dtwin",
		"version":   s.deps.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(); err != nil {
			health["db"] = "unhealthy"
			health["db_error"] = err.Error()
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}
	}

	status := fiber.StatusOK
	if health["status"] == "degraded" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}

// ---- Sessions ----

type sessionResponse struct {
	ID string `json:"id"`
	twin.SessionState
}

func (s *Server) createSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, st, err := s.deps.Sessions.Create(ctx)
	if err != nil {
		return err
	}
	if s.deps.Uploads != nil {
		// An unreadable log leaves the session unseeded; GET /api/uploads
		// reports the error.
		if seeded, err := twin.StartSession(s.deps.Uploads, twin.DefaultRecentUploads); err == nil && len(seeded.RecentSummaries) > 0 {
			if err := s.deps.Sessions.Save(ctx, id, seeded); err != nil {
				return err
			}
			st = seeded
		}
	}
	return c.Status(fiber.StatusCreated).JSON(sessionResponse{ID: id, SessionState: st})
}

// sessionID copies the id route param. Fiber hands out params that alias
// the pooled request buffer, and ids outlive the request as map keys.
func sessionID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}

// lockSession takes the session's turn lock and loads it. On success the
// caller must run the returned unlock.
func (s *Server) lockSession(ctx context.Context, id string) (twin.SessionState, func(), error) {
	unlock := s.locks.lock(id)
	st, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		unlock()
		if errors.Is(err, ErrSessionNotFound) {
			s.locks.forget(id)
		}
		return twin.SessionState{}, nil, sessionError(err)
	}
	return st, unlock, nil
}

func (s *Server) getSession(c *fiber.Ctx) error {
	id := sessionID(c)
	st, err := s.deps.Sessions.Get(c.UserContext(), id)
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(sessionResponse{ID: id, SessionState: st})
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	id := sessionID(c)
	ctx := c.UserContext()
	_, unlock, err := s.lockSession(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.deps.Sessions.Delete(ctx, id); err != nil {
		return sessionError(err)
	}
	s.locks.forget(id)
	return c.SendStatus(fiber.StatusNoContent)
}

func sessionError(err error) error {
	if errors.Is(err, ErrSessionNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return err
}

// ---- Turns ----

type messageRequest struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

type turnResponse struct {
	Reply         string   `json:"reply"`
	Model         string   `json:"model"`
	Command       string   `json:"command"`
	Failed        bool     `json:"failed"`
	MemoryWritten bool     `json:"memory_written"`
	Warnings      []string `json:"warnings"`
	KrytenMode    bool     `json:"kryten_mode"`
	Messages      int      `json:"messages"`
}

func (s *Server) postMessage(c *fiber.Ctx) error {
	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}

	id := sessionID(c)
	ctx := c.UserContext()
	st, unlock, err := s.lockSession(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if req.Model != "" {
		st.Model = req.Model
	}

	st, res := s.deps.Turner.HandleTurn(ctx, st, req.Content)
	if err := s.deps.Sessions.Save(ctx, id, st); err != nil {
		return sessionError(err)
	}

	return c.JSON(turnResponse{
		Reply:         res.Reply,
		Model:         res.Model,
		Command:       res.Command.String(),
		Failed:        res.Failed,
		MemoryWritten: res.MemoryWritten,
		Warnings:      errorStrings(res.Warnings),
		KrytenMode:    st.KrytenMode,
		Messages:      len(st.Messages),
	})
}

// ---- Uploads ----

type uploadResult struct {
	Filename string                 `json:"filename"`
	OK       bool                   `json:"ok"`
	Error    string                 `json:"error,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	Metadata *ingest.UploadMetadata `json:"metadata,omitempty"`
}

func (s *Server) postUploads(c *fiber.Ctx) error {
	if s.deps.Ingester == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion is not configured")
	}
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "expected multipart form with files"})
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no files uploaded"})
	}

	id := sessionID(c)
	ctx := c.UserContext()
	st, unlock, err := s.lockSession(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	dir := s.deps.UploadDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "dtwin-upload-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		path := filepath.Join(dir, filepath.Base(fh.Filename))
		if err := c.SaveFile(fh, path); err != nil {
			return fmt.Errorf("save %s: %w", fh.Filename, err)
		}
		paths = append(paths, path)
	}

	results := s.deps.Ingester.IngestBatch(ctx, paths, ingest.Options{Uploader: c.FormValue("uploader")}, nil)

	out := make([]uploadResult, 0, len(results))
	var last *ingest.FileResult
	for i := range results {
		r := results[i]
		ur := uploadResult{Filename: filepath.Base(r.Path), OK: r.OK(), Warnings: errorStrings(r.Warnings)}
		if r.OK() {
			meta := r.Metadata
			ur.Metadata = &meta
			last = &results[i]
		} else {
			ur.Error = r.Err.Error()
		}
		out = append(out, ur)
	}

	if last != nil {
		st = st.WithUpload(last.Metadata, last.Text)
		if err := s.deps.Sessions.Save(ctx, id, st); err != nil {
			return sessionError(err)
		}
	}
	return c.JSON(fiber.Map{"results": out})
}

func (s *Server) listUploads(c *fiber.Ctx) error {
	if s.deps.Uploads == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "upload log is not configured")
	}
	entries, err := s.deps.Uploads.Recent(c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []ingest.UploadMetadata{}
	}
	return c.JSON(fiber.Map{"uploads": entries})
}

// ---- Memory ----

func (s *Server) memoryStats(c *fiber.Ctx) error {
	if s.deps.Memory == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "memory store is not configured")
	}
	ns := c.Params("namespace")
	if !memory.ValidNamespace(ns) {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown namespace %q", ns))
	}

	ctx := c.UserContext()
	stats, err := s.deps.Memory.Stats(ctx, ns)
	if err != nil {
		return err
	}
	sample, err := s.deps.Memory.Sample(ctx, ns, c.QueryInt("limit", defaultSampleLimit))
	if err != nil {
		return err
	}
	if sample == nil {
		sample = []memory.Record{}
	}
	return c.JSON(fiber.Map{"stats": stats, "sample": sample})
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
