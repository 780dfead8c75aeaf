package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bherila/k1flow/src/database"
	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/model"
	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/security/validation"
	"github.com/bherila/k1flow/src/utils"
)

type AccountHandler struct{}

func NewAccountHandler() *AccountHandler {
	return &AccountHandler{}
}

type createAccountRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateAccountName(req.Name); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	account := &models.Account{Name: validation.SanitizeText(req.Name), Kind: validation.SanitizeText(req.Kind)}
	if err := model.CreateAccount(database.DB, account); err != nil {
		ctxLogger.Error("Failed to create account", "name", req.Name, "error", err)
		utils.SendJSONError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Account created", "accountID", account.ID, "name", account.Name)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := model.ListAccounts(database.DB)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list accounts", "error", err)
		utils.SendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

func (h *AccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	account, err := model.GetAccountByID(database.DB, accountID)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to get account", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to get account", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	accountID, ok := accountIDFromURL(w, r)
	if !ok {
		return
	}
	if err := model.DeleteAccount(database.DB, accountID); err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
			return
		}
		ctxLogger.Error("Failed to delete account", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to delete account", http.StatusInternalServerError)
		return
	}
	ctxLogger.Info("Account deleted", "accountID", accountID)
	w.WriteHeader(http.StatusNoContent)
}

// accountIDFromURL parses the {accountID} URL parameter, writing a 400 on
// failure.
func accountIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "accountID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		utils.SendJSONError(w, "Invalid account ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
