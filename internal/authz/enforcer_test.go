package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeonmap/backend/internal/models"
)

func TestEnforcer(t *testing.T) {
	e, err := NewEnforcer([]string{"Admin@HomeOnMap.in"})
	require.NoError(t, err)

	tests := []struct {
		name string
		id   models.Identity
		obj  string
		act  string
		want bool
	}{
		{"admin deletes any listing", models.Identity{ID: "a", Email: "admin@homeonmap.in"}, ObjListing, ActDeleteAny, true},
		{"admin email case-insensitive", models.Identity{ID: "a", Email: " ADMIN@homeonmap.in"}, ObjEvents, ActRead, true},
		{"regular user", models.Identity{ID: "b", Email: "bob@example.com"}, ObjListing, ActDeleteAny, false},
		{"no email", models.Identity{ID: "c"}, ObjListing, ActDeleteAny, false},
		{"admin unknown action", models.Identity{ID: "a", Email: "admin@homeonmap.in"}, ObjListing, "purge", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Allowed(tt.id, tt.obj, tt.act)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnforcerWithoutAdmins(t *testing.T) {
	e, err := NewEnforcer(nil)
	require.NoError(t, err)
	ok, err := e.Allowed(models.Identity{ID: "x", Email: "x@example.com"}, ObjEvents, ActRead)
	require.NoError(t, err)
	assert.False(t, ok)
}
