package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/holisticconnect/holisticconnect/internal/platform/auth"
)

// Handler serves the auth flow endpoints. Failures render as
// {"error":{"code","message"}} with the fixed user-facing vocabulary.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the flows on the API-key-gated auth group and the
// dashboard on the session-gated API group.
func (h *Handler) RegisterRoutes(authGroup, api *echo.Group) {
	authGroup.POST("/signup", h.SignUp)
	authGroup.POST("/signin", h.SignIn)
	authGroup.POST("/federated", h.FederatedSignIn)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/signout", h.SignOut)
	authGroup.POST("/password-reset", h.RequestPasswordReset)
	authGroup.POST("/password-reset/confirm", h.ConfirmPasswordReset)
	authGroup.POST("/verify-email", h.ResendVerification)
	authGroup.POST("/verify-email/confirm", h.ConfirmVerifyEmail)

	api.GET("/dashboard", h.Dashboard)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newErrorBody(code, message string) errorBody {
	return errorBody{Error: errorDetail{Code: code, Message: message}}
}

func statusFor(code auth.Code) int {
	switch code {
	case auth.CodeUserNotFound, auth.CodeWrongPassword, auth.CodeInvalidCredential:
		return http.StatusUnauthorized
	case auth.CodeUserDisabled:
		return http.StatusForbidden
	case auth.CodeEmailAlreadyInUse:
		return http.StatusConflict
	case auth.CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// renderError writes the coded error envelope. Anything without a provider
// code is an internal failure and stays generic.
func renderError(c echo.Context, err error) error {
	code := auth.CodeOf(err)
	if code == "" {
		return c.JSON(http.StatusInternalServerError, newErrorBody("internal", auth.Message(err)))
	}
	return c.JSON(statusFor(code), newErrorBody(string(code), auth.Message(err)))
}

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	resp, err := h.svc.SignUp(c.Request().Context(), req)
	if errors.Is(err, ErrInvalidRole) {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-role", "Please choose a valid account type."))
	}
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) SignIn(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	resp, err := h.svc.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) FederatedSignIn(c echo.Context) error {
	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	resp, err := h.svc.FederatedSignIn(c.Request().Context(), req.IDToken)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Refresh(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	sess, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) SignOut(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	if err := h.svc.SignOut(c.Request().Context(), uid); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RequestPasswordReset(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	if err := h.svc.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ConfirmPasswordReset(c echo.Context) error {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	if err := h.svc.ConfirmPasswordReset(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ResendVerification(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	if err := h.svc.ResendVerification(c.Request().Context(), uid); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ConfirmVerifyEmail(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, newErrorBody("invalid-request", "Invalid request body."))
	}

	if err := h.svc.ConfirmVerifyEmail(c.Request().Context(), req.Token); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Dashboard(c echo.Context) error {
	uid, ok := auth.SessionUID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing session")
	}
	return c.JSON(http.StatusOK, h.svc.Dashboard(c.Request().Context(), uid))
}
