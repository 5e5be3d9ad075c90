package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/directory-auth/internal/apperror"
    "github.com/iliyamo/directory-auth/internal/middleware"
)

// AuthHandler serves invite redemption and password change.
type AuthHandler struct {
    Auth Authenticator
}

func NewAuthHandler(a Authenticator) *AuthHandler {
    return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type setPasswordReq struct {
    InviteToken string `json:"invite_token" form:"invite_token" validate:"required"`
    NewPassword string `json:"new_password" form:"new_password" validate:"required,min=8,has_upper,has_digit"`
}

type changePasswordReq struct {
    CurrentPassword string `json:"current_password" form:"current_password" validate:"required"`
    NewPassword     string `json:"new_password"     form:"new_password"     validate:"required,min=8,has_upper,has_digit"`
}

// SetPassword redeems an invite token and sets the first password.
func (h *AuthHandler) SetPassword(c echo.Context) error {
    var req setPasswordReq
    if err := bindAndValidate(c, &req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Auth.SetPassword(ctx, req.InviteToken, req.NewPassword); err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Password set successfully. You may now log in."})
}

// ChangePassword replaces the password of the authenticated caller.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
    var req changePasswordReq
    if err := bindAndValidate(c, &req); err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    // JWTAuth guarantees a subject on this route.
    if err := h.Auth.ChangePassword(ctx, middleware.UserID(c), req.CurrentPassword, req.NewPassword); err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "Password changed successfully."})
}

// bindAndValidate reports body and field problems as 400 AppErrors.
func bindAndValidate(c echo.Context, dst interface{}) error {
    if err := c.Bind(dst); err != nil {
        return apperror.New(http.StatusBadRequest, "Request body could not be parsed.")
    }
    if err := c.Validate(dst); err != nil {
        var ve *ValidationError
        if errors.As(err, &ve) {
            return apperror.New(http.StatusBadRequest, ve.Message)
        }
        return err
    }
    return nil
}
