package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		header string
		want   int
	}{
		{"no keys passes through", nil, "", http.StatusOK},
		{"empty string keys pass through", []string{"", ""}, "", http.StatusOK},
		{"missing header", []string{"secret"}, "", http.StatusUnauthorized},
		{"basic scheme", []string{"secret"}, "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"invalid token", []string{"secret"}, "Bearer wrong-key", http.StatusUnauthorized},
		{"empty bearer token", []string{"secret", ""}, "Bearer ", http.StatusUnauthorized},
		{"valid token", []string{"secret"}, "Bearer secret", http.StatusOK},
		{"second key", []string{"key1", "key2"}, "Bearer key2", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminAuthMiddleware(tt.keys)(okHandler())

			req := httptest.NewRequest(http.MethodDelete, "/v1/cache?pattern=search:*", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("got %d, want %d", rr.Code, tt.want)
			}
			if tt.want != http.StatusUnauthorized {
				return
			}
			var errResp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != CodeUnauthorized {
				t.Errorf("error code: got %s, want %s", errResp.Code, CodeUnauthorized)
			}
		})
	}
}
