package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) handleCreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "payment gateway is not configured"})
		return
	}
	session, err := a.payments.CreatePaymentSession(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// handlePaymentNotification always acknowledges; processing problems are
// logged by the adapter and never surfaced to the gateway.
func (a *API) handlePaymentNotification(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.logger.WarnContext(r.Context(), "gateway notification too large", slog.Int64("limit", tooLarge.Limit))
		} else {
			a.logger.WarnContext(r.Context(), "failed to read gateway notification", slog.Any("error", err))
		}
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if a.payments != nil {
		a.payments.HandleNotification(r.Context(), raw)
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (a *API) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if a.payments == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "payment gateway is not configured"})
		return
	}
	snapshot, err := a.payments.CheckStatus(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handlePaymentOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := a.service.ListPaymentOrders(r.Context(), q.Get("status"), parsePositiveLimit(q.Get("limit"), 50, 200))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}
