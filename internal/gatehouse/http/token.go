package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/gatehouse/service"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/signator"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// TokenHandler serves the token lifecycle endpoints. Issue sits behind the
// signature stage: only a caller holding a valid signing secret can mint
// tokens, which is what replaces a password flow here.
type TokenHandler struct {
	TokenService *service.TokenService
}

type issueRequest struct {
	// Data is copied opaquely into the access token's data claim.
	Data map[string]any `json:"data,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason,omitempty"`
}

// HandleIssue serves POST /v1/auth/token.
func (h *TokenHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. The signature stage must have authenticated the caller.
	userID, ok := signator.UserIDFromContext(ctx)
	if !ok || userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorBody{
			Code:    httpx.CodeSignMissingHeaders,
			Message: "token issuance requires a signed request",
		})
		return
	}

	// 2. Optional body carries the opaque data claim. An absent body is
	// fine; a malformed one is not.
	var req issueRequest
	if r.Body != nil && r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
				Code:    httpx.CodeSignBadPayload,
				Message: "request body is not valid JSON",
			})
			return
		}
	}

	// 3. Resolve roles and mint the pair.
	var roles []string
	if h.TokenService.Roles != nil {
		var err error
		roles, err = h.TokenService.Roles.ResolveRoles(ctx, userID)
		if err != nil {
			log.Error("role resolution failed", "error", err, "user_id", userID)
			httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{
				Code:    httpx.CodeStoreFailure,
				Message: "unable to issue tokens",
			})
			return
		}
	}

	pair, err := h.TokenService.IssuePair(ctx, userID, roles, req.Data)
	if err != nil {
		log.Error("token issuance failed", "error", err, "user_id", userID)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{
			Code:    httpx.CodeStoreFailure,
			Message: "unable to issue tokens",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleRefresh serves POST /v1/auth/refresh.
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
			Code:    httpx.CodeAuthMalformed,
			Message: "refresh_token is required",
		})
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRevokedRefresh):
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorBody{
				Code:    httpx.CodeAuthRevoked,
				Message: "refresh token has been revoked",
			})
		case errors.Is(err, service.ErrInvalidRefresh):
			httpx.WriteError(w, http.StatusUnauthorized, httpx.ErrorBody{
				Code:    httpx.CodeAuthInvalid,
				Message: "refresh token is invalid",
			})
		default:
			log.Error("refresh failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{
				Code:    httpx.CodeStoreFailure,
				Message: "unable to refresh tokens",
			})
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleRevoke serves POST /v1/auth/revoke. Invalid or unknown tokens
// still answer 200 so the endpoint can't be used to probe token validity.
func (h *TokenHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
			Code:    httpx.CodeAuthMalformed,
			Message: "token is required",
		})
		return
	}

	if err := h.TokenService.Revoke(ctx, req.Token, req.Reason); err != nil {
		log.Error("revoke failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{
			Code:    httpx.CodeStoreFailure,
			Message: "unable to revoke token",
		})
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
