package user_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/feeledger/core/user"
	"github.com/trezcool/feeledger/tests"
)

func TestPasswordPolicy(t *testing.T) {
	validate, translator := testutil.NewValidator()

	tests := []struct {
		pwd     string
		wantErr string
	}{
		{"s3cr3t-pass", ""},
		{"abc", "password must contain at least 6 characters"},
		{"with space", "password must not contain whitespace"},
		{"12345678", "password cannot be entirely numeric"},
		{"nimal.perera", "password cannot be similar to user attributes"},
	}
	for _, tt := range tests {
		t.Run(tt.pwd, func(t *testing.T) {
			err := validate.Struct(user.NewUser{
				Name:            "Nimal Perera",
				Email:           "nimal.perera@school.lk",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
				Access:          user.AccessSpec{Kind: user.AccessRoleBased},
			})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs), err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.wantErr, verrs[0].Translate(translator))
		})
	}

	t.Run("unknown capability", func(t *testing.T) {
		err := validate.Struct(user.AccessSpec{
			Kind:   user.AccessRoleBased,
			Grants: user.NewCapabilitySet(user.Capability{Module: "Library", Action: user.ActionView}),
		})
		var verrs validator.ValidationErrors
		require.True(t, errors.As(err, &verrs), err)
		assert.Equal(t, "unknown module or action", verrs[0].Translate(translator))
	})
}
