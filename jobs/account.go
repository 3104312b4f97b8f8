package jobs

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"gigflow/apperr"
	"gigflow/identity"
	"gigflow/ledger"
	"gigflow/models"
	"gigflow/receipt"
	"gigflow/utils"
)

type balance struct {
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

func (h *Handlers) Balance(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := identity.Require(r.Context())
	if err != nil {
		respond(w, 0, balance{}, err)
		return
	}
	bal, err := h.Ledger.Balance(r.Context(), userID)
	respond(w, http.StatusOK, balance{Balance: bal, Currency: ledger.Currency}, err)
}

// TopUp credits the caller's wallet. The deposit ref comes from the
// Idempotency-Key header so a retried top-up is applied once.
func (h *Handlers) TopUp(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Amount float64 `json:"amount"`
	}
	userID, err := identity.Require(r.Context())
	if err == nil {
		err = decode(r, &body)
	}
	if err != nil {
		respond(w, 0, models.Transaction{}, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = utils.GetUUID()
	}
	txn, err := h.Ledger.TopUp(r.Context(), userID, body.Amount, "topup:"+userID+":"+key)
	respond(w, http.StatusCreated, txn, err)
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := identity.Require(r.Context())
	if err != nil {
		respond(w, 0, []models.Transaction{}, err)
		return
	}
	skip, limit := utils.ParsePagination(r, 20, 100)
	out, err := h.Ledger.History(r.Context(), userID, limit, skip)
	respond(w, http.StatusOK, out, err)
}

func (h *Handlers) ListInbox(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := identity.Require(r.Context())
	if err != nil {
		respond(w, 0, []models.Notification{}, err)
		return
	}
	_, limit := utils.ParsePagination(r, 50, 200)
	out, err := h.Inbox.List(r.Context(), userID, limit)
	respond(w, http.StatusOK, out, err)
}

func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := identity.Require(r.Context())
	if err == nil {
		err = h.Inbox.MarkRead(r.Context(), userID, ps.ByName("id"))
	}
	respond(w, http.StatusOK, struct{}{}, err)
}

func (h *Handlers) ListChats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := identity.Require(r.Context())
	if err != nil {
		respond(w, 0, []models.Chat{}, err)
		return
	}
	out, err := h.Chats.ListForUser(r.Context(), userID)
	if err != nil {
		err = apperr.Wrap(apperr.CodeTransient, "chats unavailable", err)
	}
	respond(w, http.StatusOK, out, err)
}

// Receipt streams the settlement PDF of a finished job.
func (h *Handlers) Receipt(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, err := identity.Require(r.Context()); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	d, err := h.Jobs.Snapshot(r.Context(), ps.ByName("id"))
	if err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	st, err := receipt.FromDetail(r.Context(), d, h.Ledger, h.PublicURL)
	if err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=receipt-"+d.Job.JobID+".pdf")
	if err := receipt.Render(w, st); err != nil {
		log.Error().Err(err).Str("job", d.Job.JobID).Msg("receipt render failed")
	}
}
