// Package server exposes restyle sessions over HTTP. A session is started
// with POST /v1/sessions and runs in the background; clients poll its
// status and read attempt records as they land.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cwbudde/algo-restyle/internal/wavio"
	"github.com/cwbudde/algo-restyle/scoring"
	"github.com/cwbudde/algo-restyle/session"
)

// Runner executes one session.
type Runner interface {
	Run(ctx context.Context, req session.Request) (*session.Result, error)
}

// RecordReader lists stored attempt records.
type RecordReader interface {
	List(ctx context.Context, sessionID string) ([]session.AttemptRecord, error)
	Sessions(ctx context.Context) ([]string, error)
}

type JobStatus string

const (
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusFailed   JobStatus = "failed"
)

// Job is the server-side view of one session.
type Job struct {
	ID        string          `json:"id"`
	Status    JobStatus       `json:"status"`
	Request   session.Request `json:"request"`
	Result    *session.Result `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options configures a Server. Records and OnDone are optional.
type Options struct {
	Runner    Runner
	Records   RecordReader
	UploadDir string
	Logger    *slog.Logger
	// OnDone is called after a session finishes, successful or not.
	OnDone func(ctx context.Context, res *session.Result)
}

type Server struct {
	opts   Options
	logger *slog.Logger
	engine *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*Job
}

func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	if opts.UploadDir == "" {
		opts.UploadDir = filepath.Join(os.TempDir(), "restyle-uploads")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		logger: logger.With("component", "server"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Close cancels running sessions and waits for them to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/:id", s.getSession)
		v1.GET("/sessions/:id/attempts", s.listAttempts)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func errorResponse(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": msg})
}

type createRequest struct {
	Source  string `json:"source" form:"source"`
	Style   string `json:"style" form:"style" binding:"required"`
	Emotion string `json:"emotion" form:"emotion" binding:"required"`
}

// createSession accepts JSON naming a server-side source path, or a
// multipart form with the audio in an "audio" file field.
func (s *Server) createSession(c *gin.Context) {
	var body createRequest
	if err := c.ShouldBind(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	id := uuid.NewString()
	source := body.Source
	if fh, err := c.FormFile("audio"); err == nil {
		if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
			errorResponse(c, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error())
			return
		}
		source = filepath.Join(s.opts.UploadDir, id+filepath.Ext(fh.Filename))
		if err := c.SaveUploadedFile(fh, source); err != nil {
			errorResponse(c, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error())
			return
		}
	}
	if source == "" {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", "source path or audio upload is required")
		return
	}
	if err := wavio.Validate(source); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, wavio.ErrNotFound) {
			status = http.StatusNotFound
		}
		errorResponse(c, status, "INVALID_AUDIO", err.Error())
		return
	}

	job := &Job{
		ID:     id,
		Status: StatusRunning,
		Request: session.Request{
			ID:     id,
			Source: source,
			Target: scoring.Target{Style: body.Style, Emotion: body.Emotion},
		},
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go s.process(job.ID, job.Request)

	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": StatusRunning})
}

func (s *Server) process(id string, req session.Request) {
	defer s.wg.Done()
	res, err := s.opts.Runner.Run(s.ctx, req)

	s.mu.Lock()
	job := s.jobs[id]
	job.Result = res
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusComplete
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("session failed", "session", id, "err", err)
	} else {
		s.logger.Info("session complete", "session", id, "summary", res.Summary())
	}
	if s.opts.OnDone != nil && res != nil {
		s.opts.OnDone(context.WithoutCancel(s.ctx), res)
	}
}

func (s *Server) job(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (s *Server) getSession(c *gin.Context) {
	job, ok := s.job(c.Param("id"))
	if !ok {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "unknown session")
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) listSessions(c *gin.Context) {
	if s.opts.Records == nil {
		s.mu.RLock()
		ids := make([]string, 0, len(s.jobs))
		for id := range s.jobs {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
		c.JSON(http.StatusOK, gin.H{"sessions": ids})
		return
	}
	ids, err := s.opts.Records.Sessions(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids})
}

// listAttempts serves stored records, falling back to the in-memory result
// of a finished job when no store is configured.
func (s *Server) listAttempts(c *gin.Context) {
	id := c.Param("id")
	if s.opts.Records != nil {
		recs, err := s.opts.Records.List(c.Request.Context(), id)
		if err != nil {
			errorResponse(c, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		if len(recs) > 0 {
			c.JSON(http.StatusOK, gin.H{"attempts": recs, "count": len(recs)})
			return
		}
	}
	job, ok := s.job(id)
	if !ok {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "unknown session")
		return
	}
	var recs []session.AttemptRecord
	if job.Result != nil {
		recs = job.Result.Attempts
	}
	c.JSON(http.StatusOK, gin.H{"attempts": recs, "count": len(recs)})
}
