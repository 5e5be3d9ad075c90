package handler

import (
    "errors"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestPasswordPolicy(t *testing.T) {
    v := NewValidator()
    cases := []struct {
        password string
        msg      string
    }{
        {"Secret12", ""},
        {"ÄÖÜabcd1X", ""},
        {"", "new_password: is required"},
        {"Sec1", "new_password: must be at least 8 characters"},
        {"secret123", "new_password: must contain at least one uppercase letter"},
        {"SecretPass", "new_password: must contain at least one digit"},
    }
    for _, tc := range cases {
        t.Run(tc.password, func(t *testing.T) {
            err := v.Validate(&setPasswordReq{InviteToken: "tok", NewPassword: tc.password})
            if tc.msg == "" {
                assert.NoError(t, err)
                return
            }
            var ve *ValidationError
            require.True(t, errors.As(err, &ve), "got %v", err)
            assert.Equal(t, tc.msg, ve.Message)
        })
    }
}

func TestValidationJoinsFields(t *testing.T) {
    err := NewValidator().Validate(&changePasswordReq{})
    require.Error(t, err)
    assert.Equal(t, "current_password: is required, new_password: is required", err.Error())
}

func TestRevokeHintValidation(t *testing.T) {
    v := NewValidator()
    assert.NoError(t, v.Validate(&revokeReq{Token: "t"}))
    assert.NoError(t, v.Validate(&revokeReq{Token: "t", TokenTypeHint: "access_token"}))
    assert.EqualError(t, v.Validate(&revokeReq{Token: "t", TokenTypeHint: "code"}),
        "token_type_hint: must be one of 'refresh_token', 'access_token'")
}
