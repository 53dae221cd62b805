package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"mime"
	"net/http"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/felipet/lacoctelera-backend/internal/workflow"
	"github.com/sirupsen/logrus"
)

// maxRequestBody bounds token request submissions
const maxRequestBody = 16 << 10

//go:embed templates/*.html
var templateFS embed.FS

var (
	requestForm    = template.Must(template.ParseFS(templateFS, "templates/token_request.html"))
	resultTemplate = template.Must(template.ParseFS(templateFS, "templates/result.html"))
)

// TokenRequestService is the part of the workflow reachable without a token
type TokenRequestService interface {
	Submit(ctx context.Context, req workflow.TokenRequest) (*models.APIUser, error)
	Confirm(ctx context.Context, code string) (*models.APIUser, error)
}

// TokenHandler serves the public token request and confirmation endpoints
type TokenHandler struct {
	BaseHandler
	service TokenRequestService
}

func NewTokenHandler(service TokenRequestService) *TokenHandler {
	return &TokenHandler{service: service}
}

// TokenRequestResponse is returned when a request is accepted
type TokenRequestResponse struct {
	AccountID string              `json:"account_id"`
	State     models.AccountState `json:"state"`
}

type resultPage struct {
	Title   string
	Message string
	Details []string
}

// RequestForm handles GET /token/request
func (h *TokenHandler) RequestForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := requestForm.Execute(w, nil); err != nil {
		logging.Log.WithError(err).Error("Failed to render token request form")
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// SubmitRequest handles POST /token/request. JSON bodies get JSON responses and
// form posts get an HTML page.
func (h *TokenHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	asJSON := isJSON(r)

	var req workflow.TokenRequest
	if asJSON {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondWithError(w, store.ErrInvalidInput)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.renderResult(w, http.StatusBadRequest, resultPage{Title: "Invalid request", Message: "Please introduce valid data into the form to request an API token"})
			return
		}
		req = workflow.TokenRequest{
			Name:        r.PostForm.Get("name"),
			Email:       r.PostForm.Get("email"),
			Explanation: r.PostForm.Get("explanation"),
		}
	}

	account, err := h.service.Submit(r.Context(), req)
	if err != nil {
		logging.Log.WithError(err).WithField("remote_addr", r.RemoteAddr).Debug("Token request refused")
		if asJSON {
			h.respondWithError(w, err)
			return
		}
		code, body := errorResponse(err)
		page := resultPage{Title: "Request not sent", Message: body.Message}
		for _, f := range body.Fields {
			page.Details = append(page.Details, f.Message)
		}
		if code == http.StatusBadRequest {
			page.Message = "Please introduce valid data into the form to request an API token"
		}
		h.renderResult(w, code, page)
		return
	}

	logging.Log.WithFields(logrus.Fields{"account_id": account.ID}).Info("API token requested")
	if asJSON {
		h.respondWithJSON(w, http.StatusCreated, TokenRequestResponse{AccountID: account.ID, State: account.State})
		return
	}
	h.renderResult(w, http.StatusCreated, resultPage{
		Title:   "Request sent",
		Message: "The request was sent. Check your inbox to confirm your email address.",
	})
}

// Confirm handles GET /token/confirm?code=...
func (h *TokenHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Confirm(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		code, body := errorResponse(err)
		if code >= http.StatusInternalServerError {
			logging.Log.WithError(err).Error("Failed to confirm token request")
		}
		if code == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "5")
		}
		h.renderResult(w, code, resultPage{Title: "Confirmation failed", Message: body.Message})
		return
	}
	logging.Log.WithField("account_id", account.ID).Info("Token request confirmed")
	h.renderResult(w, http.StatusOK, resultPage{
		Title:   "Email confirmed",
		Message: "Thanks, your email is confirmed. After the request is evaluated, an email will be sent to inform you about the following steps.",
	})
}

func (h *TokenHandler) renderResult(w http.ResponseWriter, code int, page resultPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := resultTemplate.Execute(w, page); err != nil {
		logging.Log.WithError(err).Error("Failed to render result page")
	}
}
