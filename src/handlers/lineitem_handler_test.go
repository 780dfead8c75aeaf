package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bherila/k1flow/src/logger"
	"github.com/bherila/k1flow/src/model"
	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/services"
)

func newTestRouter(t *testing.T) (*chi.Mux, *sql.DB) {
	t.Helper()
	logger.InitLogger("error")

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../db/migrations/000001_init_schema.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	svc := services.NewImportService(db, cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval))
	h := NewLineItemHandler(svc)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Post("/accounts/{accountID}/items", h.HandleCreateItem)
	r.Patch("/accounts/{accountID}/items/{itemID}", h.HandleUpdateItemField)
	return r, db
}

func newHandlerAccount(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	account := &models.Account{Name: "Checking"}
	require.NoError(t, model.CreateAccount(db, account))
	return account.ID
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func patchJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateItemCleansUserText(t *testing.T) {
	r, db := newTestRouter(t)
	newHandlerAccount(t, db)

	rec := postJSON(r, "/accounts/1/items", `{
		"date": "2024-03-05",
		"description": "=SUM(A1:A2)",
		"memo": "<b>note</b>",
		"amount": -12.50,
		"tags": ["bank", "recurring"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var created models.LineItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "'=SUM(A1:A2)", created.Description, "formula triggers are neutralized")
	assert.Equal(t, "note", created.Memo, "markup is stripped")
	assert.Equal(t, []string{"bank", "recurring"}, created.Tags)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), created.Date)
}

func TestCreateItemRejectsBadInput(t *testing.T) {
	r, db := newTestRouter(t)
	newHandlerAccount(t, db)

	rec := postJSON(r, "/accounts/1/items", `{"date": "someday", "amount": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(r, "/accounts/1/items", `{"date": "2024-03-05", "amount": 1, "tags": ["no spaces!"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateItemFieldValidatesDates(t *testing.T) {
	r, db := newTestRouter(t)
	accountID := newHandlerAccount(t, db)
	items := []models.LineItem{{
		Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Description: "Coffee",
		Amount:      -4.50,
	}}
	require.NoError(t, model.InsertLineItems(db, accountID, items))
	itemID := items[0].ID

	rec := patchJSON(r, "/accounts/1/items/1", `{"field": "date", "value": "next tuesday"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The rejected edit left the row readable and unchanged.
	stored, err := model.GetLineItem(db, itemID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), stored.Date)

	rec = patchJSON(r, "/accounts/1/items/1", `{"field": "date", "value": "02 Mar 2024"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err = model.GetLineItem(db, itemID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), stored.Date)
}
