package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestRequestLogger_Levels проверяет выбор уровня логирования по статус-коду
// и пути: успешные health-пробы уходят на DEBUG, ошибки — на WARN/ERROR.
func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"успешный API-запрос", "/api/v1/submissions/owner-1", http.StatusOK, `"level":"INFO"`},
		{"успешная health-проба", "/health/ready", http.StatusOK, `"level":"DEBUG"`},
		{"успешная liveness-проба", "/health/live", http.StatusOK, `"level":"DEBUG"`},
		{"ошибка клиента", "/api/v1/submissions", http.StatusForbidden, `"level":"WARN"`},
		{"неуспешная health-проба", "/health/ready", http.StatusServiceUnavailable, `"level":"ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			handler.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("запись лога %q не содержит %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, `"path":"`+tt.path+`"`) {
				t.Errorf("запись лога %q не содержит path %s", out, tt.path)
			}
		})
	}
}
