package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/x", func(c *gin.Context) { Fail(c, http.StatusForbidden, ErrPermissionDenied) })

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "generated", header: ""},
		{name: "kept", header: "req-123", keep: true},
		{name: "too long", header: strings.Repeat("a", 65)},
		{name: "control characters", header: "bad\tid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			w := httptest.NewRecorder()
			httpReq := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				httpReq.Header.Set("X-Request-ID", tt.header)
			}

			r.ServeHTTP(w, httpReq)

			var body Response
			req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
			req.Equal(w.Header().Get("X-Request-ID"), body.Metadata.RequestID)
			if tt.keep {
				req.Equal(tt.header, body.Metadata.RequestID)
			} else {
				req.NotEqual(tt.header, body.Metadata.RequestID)
				req.Len(body.Metadata.RequestID, 36)
			}
			req.Equal(ErrPermissionDenied, body.Error.Code)
			req.Equal(GetMessage(ErrPermissionDenied), body.Error.Message)
		})
	}
}
