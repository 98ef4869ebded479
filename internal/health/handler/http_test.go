package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(h *Handler, path string) *httptest.ResponseRecorder {
	r := gin.New()
	h.Register(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func ok(context.Context) error { return nil }

func TestHealthz(t *testing.T) {
	h := New(map[string]CheckFunc{"db": func(context.Context) error { return errors.New("down") }}, zap.NewNop())
	w := get(h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		code   int
		body   string
	}{
		{"no checks", nil, http.StatusOK, `{"status":"ok"}`},
		{"all pass", map[string]CheckFunc{"db": ok, "policy": ok}, http.StatusOK, `{"status":"ok"}`},
		{"nil check skipped", map[string]CheckFunc{"db": ok, "policy": nil}, http.StatusOK, `{"status":"ok"}`},
		{
			"db down",
			map[string]CheckFunc{"db": func(context.Context) error { return errors.New("connection refused") }, "policy": ok},
			http.StatusServiceUnavailable,
			`{"status":"unavailable","checks":{"db":"connection refused"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(New(tt.checks, nil), "/readyz")
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestReadyz_CheckSeesDeadline(t *testing.T) {
	var hasDeadline bool
	h := New(map[string]CheckFunc{"db": func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}}, nil)
	get(h, "/readyz")
	assert.True(t, hasDeadline)
}
