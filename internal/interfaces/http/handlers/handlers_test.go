package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-FPIndex/internal/application/indexing"
	"github.com/turtacn/KeyIP-FPIndex/internal/domain/molecule"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/storage/minio"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

// MockService is a testify mock of indexing.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) Fingerprint(ctx context.Context, in *indexing.FingerprintInput) (*indexing.FingerprintResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indexing.FingerprintResult), args.Error(1)
}

func (m *MockService) IndexMolecule(ctx context.Context, r molecule.Record) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockService) IndexBatch(ctx context.Context, records []molecule.Record) (*indexing.BatchResult, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indexing.BatchResult), args.Error(1)
}

func (m *MockService) DeleteMolecules(ctx context.Context, ids ...string) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockService) Search(ctx context.Context, in *indexing.SearchInput) (*indexing.SearchResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indexing.SearchResult), args.Error(1)
}

func (m *MockService) Rebuild(ctx context.Context, src molecule.Source) (*indexing.RebuildResult, error) {
	args := m.Called(ctx, src)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indexing.RebuildResult), args.Error(1)
}

func (m *MockService) HandleMoleculeEvent(ctx context.Context, ev molecule.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockService) Snapshot(ctx context.Context, name string) (*minio.Snapshot, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.Snapshot), args.Error(1)
}

func (m *MockService) Restore(ctx context.Context, name string) (*minio.Snapshot, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.Snapshot), args.Error(1)
}

func (m *MockService) Stats(ctx context.Context) (*indexing.IndexStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*indexing.IndexStats), args.Error(1)
}

var _ indexing.Service = (*MockService)(nil)

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"plain error is masked", stderrors.New("boom"), 500, "COMMON_001", "internal server error"},
		{"internal is masked", errors.Internal("segment checksum"), 500, "COMMON_001", "internal server error"},
		{"not found", errors.NotFound("snapshot not found"), 404, "COMMON_005", "snapshot not found"},
		{"index unavailable", errors.New(errors.CodeIndexUnavailable, "index closed"), 503, "FP_004", "index closed"},
		{"incompatible settings", errors.New(errors.CodeIncompatibleSettings, "settings differ"), 409, "FP_008", "settings differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v SearchRequest
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"`+strings.Repeat("C", 64)+`"}`))
	err := decodeJSON(httptest.NewRecorder(), req, 16, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err = decodeJSON(httptest.NewRecorder(), req, 0, &v)
	assert.True(t, errors.IsValidation(err))
}

func TestSearchHandler_PassesInput(t *testing.T) {
	svc := new(MockService)
	h := NewSearchHandler(svc, nil, 0)
	svc.On("Search", mock.Anything, &indexing.SearchInput{Query: "c1ccccc1", MaxHits: 5, Verify: true}).
		Return(&indexing.SearchResult{Hits: []indexing.Hit{{ID: "phenol", Score: 0.5}}, TotalHits: 1}, nil).Once()

	w := post(h.Search, `{"query":"c1ccccc1","max_hits":5,"verify":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phenol"`)
	svc.AssertExpectations(t)
}

func TestIndexHandler_BatchAbortedKeepsPartialResult(t *testing.T) {
	svc := new(MockService)
	h := NewIndexHandler(svc, nil, nil, 0)
	aborted := errors.Wrap(stderrors.New("disk full"), errors.CodeBatchAborted, "batch indexing aborted").
		WithDetail("committed_chunks=1 total_chunks=2")
	svc.On("IndexBatch", mock.Anything, mock.Anything).
		Return(&indexing.BatchResult{Indexed: 2, ChunksCommitted: 1, ChunksTotal: 2}, aborted).Once()

	w := post(h.IndexBatch, `{"molecules":[{"id":"a","structure":"CCO"}]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"code":"FP_009"`)
	assert.Contains(t, body, `"chunks_committed":1`)
	assert.Contains(t, body, "committed_chunks=1")
}

func TestIndexHandler_Rebuild(t *testing.T) {
	svc := new(MockService)
	src := struct{ molecule.Source }{}
	h := NewIndexHandler(svc, src, nil, 0)
	svc.On("Rebuild", mock.Anything, src).Return(&indexing.RebuildResult{Pages: 2, Indexed: 10}, nil).Once()

	w := post(h.Rebuild, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"indexed":10`)

	svc.On("Rebuild", mock.Anything, src).Return(nil, errors.Conflict("rebuild already running")).Once()
	w = post(h.Rebuild, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIndexHandler_RestoreByName(t *testing.T) {
	svc := new(MockService)
	h := NewIndexHandler(svc, nil, nil, 0)
	svc.On("Restore", mock.Anything, "nightly").Return(&minio.Snapshot{Name: "nightly", Docs: 3}, nil).Once()

	w := post(h.Restore, `{"name":"nightly"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"nightly"`)
	svc.AssertExpectations(t)
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := CheckFunc{Component: "index", Fn: func(context.Context) error { return nil }}
	down := CheckFunc{Component: "redis", Fn: func(context.Context) error { return stderrors.New("connection refused") }}

	w := httptest.NewRecorder()
	NewHealthHandler("v1", nil, ok).Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	NewHealthHandler("v1", nil, ok, down).Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), `"not_ready"`)
}

//Personal.AI order the ending
