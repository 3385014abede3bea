package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"sessions-portal/core/auth"
	"sessions-portal/core/google"
	"sessions-portal/logger"
	"sessions-portal/model"
)

type ctxKey string

const userCtxKey ctxKey = "user"

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Refresh  string    `json:"refresh"`
	Access   string    `json:"access"`
	UserInfo *userView `json:"user_info"`
}

// RegisterHandler creates an email/password account.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "A valid email is required.")
		return
	}

	exists, err := h.userRepo.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		logger.Error("[Register] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "This email has already been used.")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("[Register] 密码加密失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = strings.SplitN(req.Email, "@", 2)[0]
	}
	user := &model.User{
		Email:        req.Email,
		Username:     username,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.userRepo.Create(r.Context(), user); err != nil {
		logger.Error("[Register] 创建用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("[Register] 用户注册成功", logger.Uint("userId", user.ID), logger.String("email", user.Email))
	writeJSON(w, http.StatusCreated, newUserView(user))
}

// LoginHandler handles email/password login.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil || !user.IsActive || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 登录失败", logger.String("email", req.Email))
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	h.respondWithTokens(w, user)
}

type googleLoginRequest struct {
	AuthToken string `json:"auth_token"`
}

// GoogleLoginHandler exchanges a Google access token for portal tokens,
// creating the account on first login.
func (h *APIHandler) GoogleLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(r, &req); err != nil || req.AuthToken == "" {
		writeError(w, http.StatusBadRequest, google.ErrAuthenticationFailed.Error())
		return
	}

	profile, err := h.google.UserInfo(r.Context(), req.AuthToken)
	if err != nil {
		logger.Warn("[GoogleLogin] userinfo failed", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, google.ErrAuthenticationFailed.Error())
		return
	}
	if err := google.CheckDomain(profile, h.cfg.AllowOnlyInternalUsers, h.cfg.AllowedHostedDomain); err != nil {
		logger.Warn("[GoogleLogin] rejected domain", logger.String("email", profile.Email), logger.String("hd", profile.HostedDomain))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userRepo.GetByEmail(r.Context(), profile.Email)
	if err != nil {
		logger.Error("[GoogleLogin] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		user = &model.User{
			Email:     profile.Email,
			Username:  google.Username(profile),
			FirstName: profile.GivenName,
			LastName:  profile.FamilyName,
			IsActive:  true,
		}
		if err := h.userRepo.Create(r.Context(), user); err != nil {
			logger.Error("[GoogleLogin] 创建用户失败", logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		logger.Info("[GoogleLogin] new user", logger.Uint("userId", user.ID), logger.String("email", user.Email))
	}
	h.respondWithTokens(w, user)
}

func (h *APIHandler) respondWithTokens(w http.ResponseWriter, user *model.User) {
	pair, err := h.tokens.Issue(user.ID, user.Email, user.IsStaff)
	if err != nil {
		logger.Error("failed to issue tokens", logger.Uint("userId", user.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Refresh:  pair.Refresh,
		Access:   pair.Access,
		UserInfo: newUserView(user),
	})
}

// RefreshHandler issues a new access token from a refresh token.
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "refresh is required")
		return
	}
	access, expires, err := h.tokens.Refresh(req.Refresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access":         access,
		"access_expires": expires,
	})
}

// MeHandler returns the authenticated user.
func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := UserFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

// AuthMiddleware is a middleware function that checks for a valid access token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := h.tokens.Parse(parts[1], auth.TokenTypeAccess)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		// 令牌签发后用户可能已被停用
		user, err := h.userRepo.GetByID(r.Context(), claims.UserID)
		if err != nil {
			logger.Error("auth: load user failed", logger.Uint("userId", claims.UserID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if user == nil || !user.IsActive {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// StaffOnly wraps AuthMiddleware and rejects non-staff users with 403.
func (h *APIHandler) StaffOnly(next http.HandlerFunc) http.HandlerFunc {
	return h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r.Context())
		if err != nil || !user.IsStaff {
			writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext extracts the authenticated user from the request context
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userCtxKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}
