package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-flow/internal/domain/apperr"
)

func testContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, w
}

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		retryable  bool
	}{
		{"validation", apperr.Validationf("bad input"), http.StatusBadRequest, false},
		{"not found", apperr.NotFoundf("document 9"), http.StatusNotFound, false},
		{"forbidden", apperr.Forbiddenf("not your step"), http.StatusForbidden, false},
		{"invalid state", apperr.InvalidStatef("already decided"), http.StatusConflict, false},
		{"unresolvable", apperr.Unresolvablef("no manager"), http.StatusUnprocessableEntity, false},
		{"upstream unavailable", apperr.ErrUpstreamUnavailable, http.StatusServiceUnavailable, true},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, false},
	}

	h := &Handlers{logger: zap.NewNop()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := testContext(t)

			h.respondError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.retryable, resp.Retryable)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	h := &Handlers{logger: zap.NewNop()}
	c, w := testContext(t)

	h.HealthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestCallerID(t *testing.T) {
	h := &Handlers{logger: zap.NewNop()}
	c, _ := testContext(t)

	assert.Empty(t, h.callerID(c))

	c.Request.Header.Set(employeeHeader, "emp-7")
	assert.Equal(t, "emp-7", h.callerID(c))
}

func TestPathID(t *testing.T) {
	c, _ := testContext(t)

	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, err := pathID(c)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	c.Params = gin.Params{{Key: "id", Value: "not-a-number"}}
	_, err = pathID(c)
	assert.Error(t, err)
}
