package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecoveryMiddleware(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status code = %v, want %v", w.Code, http.StatusInternalServerError)
		}
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

		if w.Code != http.StatusOK || w.Body.String() != "OK" {
			t.Errorf("got %d %q, want 200 OK", w.Code, w.Body.String())
		}
	})
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{
			name:    "implicit ok",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("x")) },
			want:    http.StatusOK,
		},
		{
			name:    "explicit",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			want:    http.StatusServiceUnavailable,
		},
		{
			name: "first header wins",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.WriteHeader(http.StatusOK)
			},
			want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := newResponseWriter(httptest.NewRecorder())
			tt.handler(rw, httptest.NewRequest(http.MethodGet, "/", nil))
			if rw.statusCode != tt.want {
				t.Errorf("statusCode = %d, want %d", rw.statusCode, tt.want)
			}
		})
	}
}

func TestLoggingMiddlewarePreservesResponse(t *testing.T) {
	wrapped := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusTeapot)
	}
}
