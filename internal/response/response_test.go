package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage int
		total         int64
		pages         int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.perPage, tt.total)
		assert.Equal(t, tt.pages, p.TotalPages, "total=%d per_page=%d", tt.total, tt.perPage)
		assert.Equal(t, tt.total, p.TotalItems)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"ok": true}) })

	caller := uuid.New().String()
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"valid uuid reused", caller, true},
		{"garbage replaced", "<script>", false},
		{"missing generated", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			_, err := uuid.Parse(got)
			require.NoError(t, err)
			if tt.keep {
				assert.Equal(t, caller, got)
			}

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, got, body.Metadata.RequestID)
		})
	}
}

func TestFailWithData(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		FailWithData(c, http.StatusBadGateway, ErrSubmissionFailed, gin.H{"retryable": true})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusBadGateway, w.Code)
	var body struct {
		Data  map[string]bool `json:"data"`
		Error ErrorBody       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data["retryable"])
	assert.Equal(t, ErrSubmissionFailed, body.Error.Code)
	assert.Equal(t, GetMessage(ErrSubmissionFailed), body.Error.Message)
	assert.NotEmpty(t, body.Error.Message)
}
