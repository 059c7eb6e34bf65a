package user

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanGrant(t *testing.T) {
	view := Capability{Module: ModuleStudents, Action: ActionView}
	edit := Capability{Module: ModuleStudents, Action: ActionEdit}
	clerk := RoleBased{Grants: NewCapabilitySet(view, edit)}

	tests := []struct {
		name          string
		actor, target Access
		want          bool
	}{
		{"super admin grants anything", SuperAdmin{}, RoleBased{Grants: AllCapabilities}, true},
		{"super admin makes super admins", SuperAdmin{}, SuperAdmin{}, true},
		{"subset", clerk, RoleBased{Grants: NewCapabilitySet(view)}, true},
		{"same set", clerk, clerk, true},
		{"nothing", clerk, RoleBased{}, true},
		{"capability not held", clerk, RoleBased{Grants: NewCapabilitySet(Capability{Module: ModuleUsers, Action: ActionAdd})}, false},
		{"role based cannot make super admins", RoleBased{Grants: AllCapabilities}, SuperAdmin{}, false},
		{"no actor access", nil, clerk, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanGrant(tt.actor, tt.target))
		})
	}
}

func TestAccessSpec(t *testing.T) {
	assert.Len(t, AllCapabilities, len(Modules)*len(Actions))

	var spec AccessSpec
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"role_based","grants":{"Payments":{"View":true,"Add":false},"Students":{"Edit":true}}}`), &spec))
	access, err := spec.Access()
	require.NoError(t, err)
	assert.True(t, access.Allows(Capability{Module: ModulePayments, Action: ActionView}))
	assert.False(t, access.Allows(Capability{Module: ModulePayments, Action: ActionAdd}))
	assert.True(t, access.Allows(Capability{Module: ModuleStudents, Action: ActionEdit}))

	data, err := json.Marshal(SpecOf(access))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"role_based","grants":{"Payments":{"View":true},"Students":{"Edit":true}}}`, string(data))

	require.NoError(t, json.Unmarshal([]byte(`{"kind":"role_based","grants":{"Library":{"View":true}}}`), &spec))
	_, err = spec.Access()
	assert.EqualError(t, err, "unknown capabilities: [Library:View]")

	_, err = AccessSpec{Kind: "guest"}.Access()
	assert.Error(t, err)

	admin, err := AccessSpec{Kind: AccessSuperAdmin, Grants: NewCapabilitySet(Capability{Module: ModuleUsers, Action: ActionView})}.Access()
	require.NoError(t, err)
	assert.Equal(t, SuperAdmin{}, admin)
	assert.True(t, User{Access: admin}.Allows(ModuleUpgrading, ActionEdit))
	assert.False(t, User{}.Allows(ModuleUpgrading, ActionView))
}
