package identity

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureDebugLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRoleFromProfile(t *testing.T) {
	tests := []struct {
		name    string
		raw     interface{}
		want    Role
		logged  bool
		logText string
	}{
		{"admin", "admin", RoleAdmin, false, ""},
		{"user", "user", RoleUser, false, ""},
		{"unknown role", "Admin", RoleUser, true, "role=Admin"},
		{"non-string role", true, RoleUser, true, "type=bool"},
		{"null role", nil, RoleUser, true, "type=<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := captureDebugLogs(t)

			assert.Equal(t, tt.want, roleFromProfile("user-7", tt.raw))
			if !tt.logged {
				assert.Empty(t, logs.String())
				return
			}
			assert.Contains(t, logs.String(), "level=DEBUG")
			assert.Contains(t, logs.String(), "userId=user-7")
			assert.Contains(t, logs.String(), tt.logText)
		})
	}
}
