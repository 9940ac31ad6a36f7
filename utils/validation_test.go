package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type registerForm struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,password"`
	Role     string  `json:"role" validate:"required,role"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,e164"`
	Internal string  `json:"-" validate:"max=3"`
}

func TestValidateStruct(t *testing.T) {
	phone := "+919812345678"
	badPhone := "98123"

	tests := []struct {
		name       string
		form       registerForm
		wantFields []string
	}{
		{
			name: "valid",
			form: registerForm{Email: "asha@example.com", Password: "passw0rd!", Role: "owner", Phone: &phone},
		},
		{
			name: "role is case-insensitive",
			form: registerForm{Email: "asha@example.com", Password: "passw0rd!", Role: "Tenant"},
		},
		{
			name:       "missing everything",
			form:       registerForm{},
			wantFields: []string{"email", "password", "role"},
		},
		{
			name:       "weak password and bad email",
			form:       registerForm{Email: "not-an-email", Password: "password", Role: "owner"},
			wantFields: []string{"email", "password"},
		},
		{
			name:       "unsupported role",
			form:       registerForm{Email: "asha@example.com", Password: "passw0rd!", Role: "manager"},
			wantFields: []string{"role"},
		},
		{
			name:       "bad phone",
			form:       registerForm{Email: "asha@example.com", Password: "passw0rd!", Role: "owner", Phone: &badPhone},
			wantFields: []string{"phone"},
		},
		{
			name:       "untagged json field uses struct name",
			form:       registerForm{Email: "asha@example.com", Password: "passw0rd!", Role: "owner", Internal: "toolong"},
			wantFields: []string{"Internal"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.form)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			assert.True(t, IsValidationError(err))
			fields := GetValidationFields(err)
			assert.Len(t, fields, len(tt.wantFields))
			for _, f := range tt.wantFields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	err := ValidateStruct(&registerForm{Email: "asha@example.com", Password: "short1", Role: "janitor"})
	fields := GetValidationFields(err)

	assert.Equal(t, "password must be at least 8 characters and contain a letter and a digit", fields["password"])
	assert.Equal(t, "role must be owner or tenant", fields["role"])
	assert.Equal(t, "Validation failed", err.Error())
}

func TestIsStrongPassword(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"abc12345", true},
		{"पासवर्ड12", true},
		{"abcdefgh", false},
		{"12345678", false},
		{"ab1", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStrongPassword(tt.password))
		})
	}
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
	assert.Nil(t, GetValidationFields(errors.New("plain")))

	wrapped := errors.Join(errors.New("context"), &ValidationError{Message: "x", Fields: map[string]string{"a": "b"}})
	assert.True(t, IsValidationError(wrapped))
	assert.Equal(t, map[string]string{"a": "b"}, GetValidationFields(wrapped))
}
