package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsemetrics/internal/apperr"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		adminRole string
		elevated  bool
	}{
		{"admin", "admin", "admin", true},
		{"user", "user", "admin", false},
		{"empty role", "", "admin", false},
		{"no admin role configured", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Resolve("u1", tt.role, tt.adminRole)
			assert.Equal(t, "u1", s.ActorID)
			assert.Equal(t, tt.elevated, s.Elevated)
		})
	}
}

func TestApplyOverridesStandardCallers(t *testing.T) {
	standard := Scope{ActorID: "alice"}
	assert.Equal(t, "alice", standard.Apply("bob"))
	assert.Equal(t, "alice", standard.Apply(""))

	admin := Scope{ActorID: "root", Elevated: true}
	assert.Equal(t, "bob", admin.Apply("bob"))
	assert.Equal(t, "", admin.Apply(""))
}

func TestOwnerFor(t *testing.T) {
	assert.Equal(t, "alice", Scope{ActorID: "alice"}.OwnerFor("bob"))
	assert.Equal(t, "bob", Scope{ActorID: "root", Elevated: true}.OwnerFor("bob"))
	assert.Equal(t, "root", Scope{ActorID: "root", Elevated: true}.OwnerFor(""))
}

func TestRequireElevated(t *testing.T) {
	err := Scope{ActorID: "alice"}.RequireElevated("revenue ranking")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	assert.NoError(t, Scope{ActorID: "root", Elevated: true}.RequireElevated("revenue ranking"))
}
