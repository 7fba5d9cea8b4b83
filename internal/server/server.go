// Package server exposes the merge operations over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dongho-jung/lanes/internal/logging"
	"github.com/dongho-jung/lanes/internal/merge"
	"github.com/dongho-jung/lanes/internal/metrics"
	"github.com/dongho-jung/lanes/internal/proposal"
	"github.com/dongho-jung/lanes/internal/run"
	"github.com/dongho-jung/lanes/internal/service"
)

// Service is the set of operations the server exposes.
type Service interface {
	MergeInfo(slug string) (*service.Info, error)
	CreateProposal(slug string, opts proposal.Options) (*proposal.Proposal, error)
	GetProposal(slug string) (*proposal.Proposal, error)
	Merge(slug string, req merge.Request, onLane func(proposal.Entry)) (*merge.Result, error)
	ListRuns() ([]string, error)
}

// Server routes HTTP requests to a Service. Merges for the same run are
// single-flight: a second request while one is running gets 409.
type Server struct {
	svc     Service
	metrics *metrics.Metrics
	router  *gin.Engine

	mu       sync.Mutex
	inflight map[string]bool
}

// New builds the router. m may be nil, in which case /metrics is not served.
func New(svc Service, m *metrics.Metrics) *Server {
	s := &Server{svc: svc, metrics: m, inflight: map[string]bool{}}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.GET("/runs", s.handleListRuns)
	runs := r.Group("/runs/:slug")
	runs.GET("/merge-info", s.handleMergeInfo)
	runs.POST("/merge-proposal", s.handleCreateProposal)
	runs.GET("/merge-proposal", s.handleGetProposal)
	runs.POST("/merge", s.handleMerge)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

type proposalRequest struct {
	Overrides map[string]string `json:"overrides" binding:"omitempty,dive,oneof=squash merge cherry-pick"`
}

type mergeRequest struct {
	LaneIDs            []string `json:"laneIds" binding:"omitempty,dive,required"`
	MergeToMain        bool     `json:"mergeToMain"`
	ConfirmMergeToMain bool     `json:"confirmMergeToMain"`
}

// bindOptional binds a JSON body, treating an empty body as the zero value.
func bindOptional(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) handleListRuns(c *gin.Context) {
	slugs, err := s.svc.ListRuns()
	if err != nil {
		writeError(c, err)
		return
	}
	if slugs == nil {
		slugs = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": slugs})
}

func (s *Server) handleMergeInfo(c *gin.Context) {
	info, err := s.svc.MergeInfo(c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleCreateProposal(c *gin.Context) {
	var req proposalRequest
	if !bindOptional(c, &req) {
		return
	}

	opts := proposal.Options{}
	if len(req.Overrides) > 0 {
		opts.Overrides = make(map[string]run.MergeMethod, len(req.Overrides))
		for lane, m := range req.Overrides {
			opts.Overrides[lane] = run.MergeMethod(m)
		}
	}

	p, err := s.svc.CreateProposal(c.Param("slug"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetProposal(c *gin.Context) {
	p, err := s.svc.GetProposal(c.Param("slug"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleMerge(c *gin.Context) {
	var req mergeRequest
	if !bindOptional(c, &req) {
		return
	}
	if req.MergeToMain && !req.ConfirmMergeToMain {
		writeError(c, merge.ErrConfirmationRequired)
		return
	}

	slug := c.Param("slug")
	if !s.acquire(slug) {
		c.JSON(http.StatusConflict, gin.H{"error": "merge already in progress"})
		return
	}
	defer s.release(slug)

	res, err := s.svc.Merge(slug, merge.Request{
		LaneIDs:            req.LaneIDs,
		MergeToMain:        req.MergeToMain,
		ConfirmMergeToMain: req.ConfirmMergeToMain,
	}, nil)
	switch {
	case err != nil && res != nil:
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
	case err != nil:
		writeError(c, err)
	case res.Conflict != nil:
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) acquire(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[slug] {
		return false
	}
	s.inflight[slug] = true
	return true
}

func (s *Server) release(slug string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, slug)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, run.ErrRunNotFound), errors.Is(err, proposal.ErrNotFound), errors.Is(err, merge.ErrNoProposal):
		return http.StatusNotFound
	case errors.Is(err, merge.ErrConfirmationRequired), errors.Is(err, service.ErrInvalidRequest), errors.Is(err, merge.ErrUnknownLane):
		return http.StatusBadRequest
	case errors.Is(err, merge.ErrUnresolvedConflict), errors.Is(err, merge.ErrDirtyWorktree), errors.Is(err, merge.ErrIncompleteIntegration):
		return http.StatusConflict
	case errors.Is(err, merge.ErrCherryPickMerges):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
