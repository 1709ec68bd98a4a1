package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codearena/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type traceResponse struct {
	TraceID      string `json:"trace_id"`
	RequestID    string `json:"request_id"`
	CtxTraceID   string `json:"ctx_trace_id"`
	CtxRequestID string `json:"ctx_request_id"`
}

func newTraceRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TraceContextMiddleware(), RequestLogger())
	router.GET("/trace", func(c *gin.Context) {
		ctx := c.Request.Context()
		traceID, _ := ctx.Value(contextkey.TraceID).(string)
		requestID, _ := ctx.Value(contextkey.RequestID).(string)
		c.JSON(http.StatusOK, traceResponse{
			TraceID:      c.GetString("trace_id"),
			RequestID:    c.GetString("request_id"),
			CtxTraceID:   traceID,
			CtxRequestID: requestID,
		})
	})
	return router
}

func TestTraceContextMiddleware(t *testing.T) {
	router := newTraceRouter()

	cases := []struct {
		name          string
		headers       map[string]string
		wantTraceID   string
		wantRequestID string
	}{
		{name: "generate ids"},
		{
			name: "preserve incoming ids",
			headers: map[string]string{
				"X-Trace-Id":   "trace-123",
				"X-Request-Id": "req-123",
			},
			wantTraceID:   "trace-123",
			wantRequestID: "req-123",
		},
		{
			name:    "blank header is regenerated",
			headers: map[string]string{"X-Trace-Id": "   "},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for key, value := range tc.headers {
				req.Header.Set(key, value)
			}
			router.ServeHTTP(rec, req)

			var resp traceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.TraceID == "" || resp.RequestID == "" {
				t.Fatalf("expected trace and request id, got %+v", resp)
			}
			if resp.CtxTraceID != resp.TraceID || resp.CtxRequestID != resp.RequestID {
				t.Fatalf("request context ids differ from gin context: %+v", resp)
			}
			if tc.wantTraceID != "" && resp.TraceID != tc.wantTraceID {
				t.Fatalf("expected trace id %s, got %s", tc.wantTraceID, resp.TraceID)
			}
			if tc.wantRequestID != "" && resp.RequestID != tc.wantRequestID {
				t.Fatalf("expected request id %s, got %s", tc.wantRequestID, resp.RequestID)
			}
			if rec.Header().Get("X-Trace-Id") != resp.TraceID {
				t.Fatalf("expected trace id header %s, got %s", resp.TraceID, rec.Header().Get("X-Trace-Id"))
			}
			if rec.Header().Get("X-Request-Id") != resp.RequestID {
				t.Fatalf("expected request id header %s, got %s", resp.RequestID, rec.Header().Get("X-Request-Id"))
			}
		})
	}
}
