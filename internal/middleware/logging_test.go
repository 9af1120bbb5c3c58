package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-ticketing-platform/internal/models"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel logrus.Level
	}{
		{name: "success", status: http.StatusOK, wantLevel: logrus.InfoLevel},
		{name: "client error", status: http.StatusConflict, wantLevel: logrus.WarnLevel},
		{name: "server error", status: http.StatusBadGateway, wantLevel: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
			req.RemoteAddr = "203.0.113.9:51234"
			req.Header.Set("User-Agent", "test-agent")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.wantLevel, entry.Level)
			assert.Equal(t, "GET", entry.Data["method"])
			assert.Equal(t, "/api/bookings", entry.Data["path"])
			assert.Equal(t, tt.status, entry.Data["status"])
			assert.Equal(t, 5, entry.Data["bytes"])
			assert.Equal(t, "203.0.113.9", entry.Data["ip"])
			assert.Equal(t, "test-agent", entry.Data["user_agent"])
		})
	}
}

func TestRequestLogger_ImplicitOKAndUser(t *testing.T) {
	logger, hook := test.NewNullLogger()
	a := newTestAuthenticator()
	tok := issue(t, a, models.Principal{UserID: "user-42"})

	inner := a.LoadPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	handler := chimw.RequestID(RequestLogger(logger)(inner))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, http.StatusOK, entry.Data["status"])
	assert.Equal(t, "user-42", entry.Data["user_id"])
	assert.NotEmpty(t, entry.Data["request_id"])
}
