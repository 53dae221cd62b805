package handlers

import (
	"net/http"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/checkauth"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
)

// AccountHandler serves endpoints for the authenticated API user
type AccountHandler struct {
	BaseHandler
}

func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

// AccountResponse describes the caller's account
type AccountResponse struct {
	AccountID string              `json:"account_id"`
	Name      *string             `json:"name,omitempty"`
	Email     string              `json:"email"`
	State     models.AccountState `json:"state"`
	CreatedAt time.Time           `json:"created_at"`
}

// GetAccount handles GET /api/v1/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account := checkauth.GetAccountFromContext(r.Context())
	if account == nil {
		h.respondWithError(w, store.ErrUnauthorized)
		return
	}
	h.respondWithJSON(w, http.StatusOK, AccountResponse{
		AccountID: account.ID,
		Name:      account.Name,
		Email:     account.Email,
		State:     account.State,
		CreatedAt: account.CreatedAt,
	})
}
