package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 RenderHandler 测试
// =============================================================================

// fakeQueue 脚本化的 RenderService 实现
type fakeQueue struct {
	job *render.Job
	err error
}

func (f *fakeQueue) Status(jobID string) (*render.Job, error) {
	return f.job, f.err
}

func TestRenderHandler_HandleGetJob(t *testing.T) {
	job := &render.Job{
		ID:         "job-1",
		WorkflowID: "wf-1",
		TemplateID: "simple_text",
		Status:     render.StatusSucceeded,
		OutputPath: "/data/media/wf-1.mp4",
		EnqueuedAt: time.Now().UTC(),
	}
	h := NewRenderHandler(&fakeQueue{job: job}, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/render/jobs/job-1", nil)
	r.SetPathValue("id", "job-1")

	h.HandleGetJob(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool       `json:"success"`
		Data    render.Job `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.Data.ID)
	assert.Equal(t, render.StatusSucceeded, resp.Data.Status)
	assert.Equal(t, "/data/media/wf-1.mp4", resp.Data.OutputPath)
}

func TestRenderHandler_HandleGetJob_NotFound(t *testing.T) {
	h := NewRenderHandler(&fakeQueue{
		err: types.NewError(types.ErrRenderJobNotFound, "render job job-x not found"),
	}, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/render/jobs/job-x", nil)
	r.SetPathValue("id", "job-x")

	h.HandleGetJob(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenderHandler_HandleGetJob_MissingID(t *testing.T) {
	h := NewRenderHandler(&fakeQueue{}, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/render/jobs/", nil)

	h.HandleGetJob(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractJobID_Fallback(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/render/jobs/job-1", "job-1"},
		{"/api/v1/render/jobs/", ""},
		{"/other", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, extractJobID(r))
		})
	}
}
