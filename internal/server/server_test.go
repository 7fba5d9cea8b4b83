package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongho-jung/lanes/internal/merge"
	"github.com/dongho-jung/lanes/internal/metrics"
	"github.com/dongho-jung/lanes/internal/proposal"
	"github.com/dongho-jung/lanes/internal/run"
	"github.com/dongho-jung/lanes/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	mu        sync.Mutex
	proposals map[string]*proposal.Proposal
	lastOpts  proposal.Options
	lastReq   merge.Request
	mergeFunc func(slug string, req merge.Request) (*merge.Result, error)
}

func newFakeService() *fakeService {
	return &fakeService{proposals: map[string]*proposal.Proposal{}}
}

func (f *fakeService) MergeInfo(slug string) (*service.Info, error) {
	if slug != "demo" {
		return nil, fmt.Errorf("%w: %s", run.ErrRunNotFound, slug)
	}
	return &service.Info{Slug: slug, IntegrationBranch: "lanes/demo", Lanes: []service.LaneInfo{{ID: "A"}}}, nil
}

func (f *fakeService) CreateProposal(slug string, opts proposal.Options) (*proposal.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	p := &proposal.Proposal{ID: "p-1", RunSlug: slug}
	f.proposals[slug] = p
	return p, nil
}

func (f *fakeService) GetProposal(slug string) (*proposal.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.proposals[slug]; ok {
		return p, nil
	}
	return nil, proposal.ErrNotFound
}

func (f *fakeService) Merge(slug string, req merge.Request, _ func(proposal.Entry)) (*merge.Result, error) {
	f.mu.Lock()
	f.lastReq = req
	fn := f.mergeFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(slug, req)
	}
	return &merge.Result{State: merge.StateDone}, nil
}

func (f *fakeService) ListRuns() ([]string, error) {
	return []string{"demo"}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndMetrics(t *testing.T) {
	s := New(newFakeService(), metrics.New())

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, New(newFakeService(), nil).Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMergeInfo(t *testing.T) {
	s := New(newFakeService(), nil)

	rec := do(t, s.Handler(), http.MethodGet, "/runs/demo/merge-info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var info service.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "lanes/demo", info.IntegrationBranch)

	rec = do(t, s.Handler(), http.MethodGet, "/runs/other/merge-info", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProposalEndpoints(t *testing.T) {
	svc := newFakeService()
	s := New(svc, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/runs/demo/merge-proposal", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s.Handler(), http.MethodPost, "/runs/demo/merge-proposal", `{"overrides":{"A":"cherry-pick"}}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, run.MethodCherryPick, svc.lastOpts.Overrides["A"])

	rec = do(t, s.Handler(), http.MethodPost, "/runs/demo/merge-proposal", "")
	assert.Equal(t, http.StatusCreated, rec.Code, "empty body is allowed")

	rec = do(t, s.Handler(), http.MethodPost, "/runs/demo/merge-proposal", `{"overrides":{"A":"rebase"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/runs/demo/merge-proposal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p proposal.Proposal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "p-1", p.ID)
}

func TestMerge_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		result   *merge.Result
		err      error
		wantCode int
	}{
		{"success", `{"laneIds":["A"]}`, &merge.Result{State: merge.StateDone}, nil, http.StatusOK},
		{"conflict", "", &merge.Result{State: merge.StateConflict, Conflict: &merge.ConflictInfo{LaneID: "A"}}, nil, http.StatusConflict},
		{"fatal with partial result", "", &merge.Result{State: merge.StateFailed}, fmt.Errorf("boom"), http.StatusInternalServerError},
		{"no proposal", "", nil, fmt.Errorf("%w: %w", merge.ErrNoProposal, proposal.ErrNotFound), http.StatusNotFound},
		{"invalid lane", "", nil, fmt.Errorf("%w: lane x", service.ErrInvalidRequest), http.StatusBadRequest},
		{"unresolved", "", &merge.Result{State: merge.StateFailed}, merge.ErrUnresolvedConflict, http.StatusConflict},
		{"dirty worktree", "", &merge.Result{State: merge.StateFailed}, merge.ErrDirtyWorktree, http.StatusConflict},
		{"unmerged lanes before fold", "", &merge.Result{State: merge.StateFailed}, fmt.Errorf("%w: A", merge.ErrIncompleteIntegration), http.StatusConflict},
		{"merge commits in cherry-pick lane", "", &merge.Result{State: merge.StateFailed}, fmt.Errorf("merge lane A: %w", merge.ErrCherryPickMerges), http.StatusUnprocessableEntity},
		{"malformed body", `{"laneIds":"A"}`, nil, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.mergeFunc = func(string, merge.Request) (*merge.Result, error) { return tt.result, tt.err }
			s := New(svc, nil)

			rec := do(t, s.Handler(), http.MethodPost, "/runs/demo/merge", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestMerge_ConfirmationRequiredBeforeService(t *testing.T) {
	svc := newFakeService()
	called := false
	svc.mergeFunc = func(string, merge.Request) (*merge.Result, error) {
		called = true
		return &merge.Result{}, nil
	}
	s := New(svc, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/runs/demo/merge", `{"mergeToMain":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)

	rec = do(t, s.Handler(), http.MethodPost, "/runs/demo/merge", `{"mergeToMain":true,"confirmMergeToMain":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastReq.ConfirmMergeToMain)
}

func TestMerge_SingleFlightPerRun(t *testing.T) {
	svc := newFakeService()
	entered := make(chan struct{})
	release := make(chan struct{})
	svc.mergeFunc = func(slug string, _ merge.Request) (*merge.Result, error) {
		if slug == "demo" {
			close(entered)
			<-release
		}
		return &merge.Result{State: merge.StateDone}, nil
	}
	s := New(svc, nil)

	done := make(chan int)
	go func() {
		done <- do(t, s.Handler(), http.MethodPost, "/runs/demo/merge", "").Code
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first merge never started")
	}

	rec := do(t, s.Handler(), http.MethodPost, "/runs/demo/merge", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "merge already in progress")

	rec = do(t, s.Handler(), http.MethodPost, "/runs/other/merge", "")
	assert.Equal(t, http.StatusOK, rec.Code, "other runs are not blocked")

	close(release)
	assert.Equal(t, http.StatusOK, <-done)

	svc.mergeFunc = nil
	rec = do(t, s.Handler(), http.MethodPost, "/runs/demo/merge", "")
	assert.Equal(t, http.StatusOK, rec.Code, "lock is released after completion")
}

func TestListRuns(t *testing.T) {
	rec := do(t, New(newFakeService(), nil).Handler(), http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":["demo"]}`, rec.Body.String())
}
