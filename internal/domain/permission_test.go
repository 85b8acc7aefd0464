package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermissionSet_UnionDoesNotMutateInputs(t *testing.T) {
	a := NewPermissionSet(PermissionRead)
	b := NewPermissionSet(PermissionWrite)

	union := a.Union(b)

	assert.True(t, union.Has(PermissionRead))
	assert.True(t, union.Has(PermissionWrite))
	assert.False(t, a.Has(PermissionWrite), "Union must not mutate its receiver")
	assert.False(t, b.Has(PermissionRead), "Union must not mutate its argument")
}

func TestPermissionSet_Missing(t *testing.T) {
	granted := NewPermissionSet(PermissionRead, PermissionExplain)
	required := NewPermissionSet(PermissionRead, PermissionWrite, PermissionDDL)

	missing := granted.Missing(required)

	assert.Equal(t, []Permission{PermissionWrite, PermissionDDL}, missing)
}

func TestPermissionSet_MissingNothing(t *testing.T) {
	granted := FullPermissionSet()
	required := NewPermissionSet(PermissionRead, PermissionAdmin)

	assert.Empty(t, granted.Missing(required))
}

func TestPermissionSet_Slice_CanonicalOrder(t *testing.T) {
	s := NewPermissionSet(PermissionAdmin, PermissionRead, PermissionDDL)

	assert.Equal(t, []Permission{PermissionRead, PermissionDDL, PermissionAdmin}, s.Slice())
}

func TestParsePermission(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Permission
		ok   bool
	}{
		{"read", "read", PermissionRead, true},
		{"export", "export", PermissionExport, true},
		{"wildcard is not a permission", "*", "", false},
		{"unknown token", "superuser", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePermission(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
