package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tokopos/backend/internal/domain"
)

func (a *API) handleListLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := a.service.ListLedgerEntries(r.Context(), q.Get("type"), parsePositiveLimit(q.Get("limit"), 100, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (a *API) handleGetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := a.service.GetLedgerEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handleDeleteLedgerEntry(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteLedgerEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) handleStockPurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.StockPurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.RecordStockPurchase(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleFinancialSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.FinancialSummary(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
