package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid email", "test@example.com", false},
		{"valid email with subdomain", "user@mail.example.com", false},
		{"valid email with plus", "user+tag@example.com", false},
		{"surrounding spaces", "  parent@example.com ", false},
		{"missing @", "testexample.com", true},
		{"missing domain", "test@", true},
		{"missing local part", "@example.com", true},
		{"empty string", "", true},
		{"spaces in email", "test @example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDeviceName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty is allowed", "", false},
		{"plain", "Kitchen iPad", false},
		{"unicode", "Léa's tablet 🦊", false},
		{"at limit", strings.Repeat("a", MaxDeviceNameLength), false},
		{"multibyte at limit", strings.Repeat("é", MaxDeviceNameLength), false},
		{"too long", strings.Repeat("a", MaxDeviceNameLength+1), true},
		{"newline", "tab\nlet", true},
		{"invalid utf8", "\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeviceName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePlatformReportsField(t *testing.T) {
	err := ValidatePlatform(strings.Repeat("x", MaxPlatformLength+1))
	var ve ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "platform", ve.Field)
	assert.Equal(t, "platform: must be at most 50 characters", err.Error())

	assert.NoError(t, ValidatePlatform("android"))
}
