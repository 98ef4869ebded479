package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notifyhub/backend/internal/delivery/service"
	ndomain "notifyhub/backend/internal/notification/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNotifier struct {
	got service.Request
	err error
}

func (f *fakeNotifier) Notify(_ context.Context, req service.Request) (*ndomain.Notification, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if req.TargetUserID == "" || req.Title == "" {
		return nil, fmt.Errorf("%w: targetUserId and title are required", ndomain.ErrValidation)
	}
	return &ndomain.Notification{ID: "n-123", UserID: req.TargetUserID, Title: req.Title}, nil
}

func post(t *testing.T, n Notifier, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	New(n, zap.NewNop()).Register(r)
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNotify_OK(t *testing.T) {
	f := &fakeNotifier{}
	w := post(t, f, `{"targetUserId":"alice","title":"Hi","body":"there","meta":{"url":"/x"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "n-123", resp.ID)
	assert.Equal(t, "alice", f.got.TargetUserID)
	assert.Equal(t, "there", f.got.Body)
	assert.JSONEq(t, `{"url":"/x"}`, string(f.got.Meta))
	assert.Equal(t, SourceHTTP, f.got.Source)
}

func TestNotify_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"malformed json", `{`, nil, http.StatusBadRequest},
		{"missing title", `{"targetUserId":"alice"}`, nil, http.StatusBadRequest},
		{"missing user", `{"title":"Hi"}`, nil, http.StatusBadRequest},
		{"denied", `{"targetUserId":"alice","title":"Hi"}`, fmt.Errorf("%w: quiet hours", service.ErrDenied), http.StatusForbidden},
		{"draining", `{"targetUserId":"alice","title":"Hi"}`, service.ErrDraining, http.StatusServiceUnavailable},
		{"store down", `{"targetUserId":"alice","title":"Hi"}`, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, &fakeNotifier{err: tt.err}, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
			if tt.wantCode == http.StatusInternalServerError {
				assert.Equal(t, "internal error", resp["error"])
			}
		})
	}
}

func TestNotify_NilLoggerStoreFailure(t *testing.T) {
	r := gin.New()
	New(&fakeNotifier{err: errors.New("db down")}, nil).Register(r)
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewBufferString(`{"targetUserId":"alice","title":"Hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
