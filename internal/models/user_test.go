package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirumlarum/registration-service/internal/lib/password"
)

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		name      string
		firstName string
		lastName  string
		want      string
	}{
		{"both parts", "Ivan", "Petrov", "Ivan Petrov"},
		{"first name only", "Ivan", "", "Ivan"},
		{"last name only", "", "Petrov", "Petrov"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{FirstName: tt.firstName, LastName: tt.lastName}
			assert.Equal(t, tt.want, u.FullName())
		})
	}
}

func TestUser_SetAndCheckPassword(t *testing.T) {
	u := &User{Username: "testuser"}

	err := u.SetPassword("password123")
	require.NoError(t, err)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotContains(t, u.PasswordHash, "password123")

	assert.NoError(t, u.CheckPassword("password123"))
	assert.ErrorIs(t, u.CheckPassword("wrongpassword"), password.ErrPasswordMismatch)
}

func TestUser_UnusablePassword(t *testing.T) {
	u := &User{Username: "testuser"}
	require.NoError(t, u.SetPassword("password123"))
	assert.True(t, u.HasUsablePassword())

	u.SetUnusablePassword()

	assert.False(t, u.HasUsablePassword())
	assert.ErrorIs(t, u.CheckPassword("password123"), password.ErrPasswordMismatch)
	assert.ErrorIs(t, u.CheckPassword(password.UnusablePassword), password.ErrPasswordMismatch)
}
