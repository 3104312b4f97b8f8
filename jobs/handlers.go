// Package jobs exposes the engagement actions over HTTP. Every response body
// is an apperr.Result; the status code follows the outcome code.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"gigflow/apperr"
	"gigflow/ledger"
	"gigflow/models"
	"gigflow/notify"
	"gigflow/orchestrator"
	"gigflow/rating"
	"gigflow/utils"
)

type ChatLister interface {
	ListForUser(ctx context.Context, userID string) ([]models.Chat, error)
}

type Handlers struct {
	Jobs      *orchestrator.Orchestrator
	Ledger    ledger.Ledger
	Inbox     notify.Box
	Chats     ChatLister
	PublicURL string
}

func respond[T any](w http.ResponseWriter, okStatus int, v T, err error) {
	status := okStatus
	if err != nil {
		status = apperr.HTTPStatus(apperr.CodeOf(err))
	}
	utils.RespondWithJSON(w, status, apperr.From(v, err))
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.CodeInvalid, "invalid request body", err)
	}
	return nil
}

func (h *Handlers) ListOpen(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := h.Jobs.OpenJobs(r.Context(), limit)
	respond(w, http.StatusOK, out, err)
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	d, err := h.Jobs.Snapshot(r.Context(), ps.ByName("id"))
	respond(w, http.StatusOK, d, err)
}

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	d, err := h.Jobs.Dashboard(r.Context())
	respond(w, http.StatusOK, d, err)
}

func (h *Handlers) Post(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var draft models.JobDraft
	if err := decode(r, &draft); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	res, err := h.Jobs.PostJob(r.Context(), draft)
	respond(w, http.StatusCreated, res, err)
}

func (h *Handlers) Apply(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Pitch string `json:"pitch"`
	}
	if err := decode(r, &body); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	res, err := h.Jobs.Apply(r.Context(), ps.ByName("id"), body.Pitch)
	respond(w, http.StatusCreated, res, err)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.Withdraw(r.Context(), ps.ByName("id"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) AcceptApplier(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.AcceptApplier(r.Context(), ps.ByName("id"), ps.ByName("user"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) RejectApplier(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.RejectApplier(r.Context(), ps.ByName("id"), ps.ByName("user"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		InviteeID string `json:"inviteeId"`
	}
	if err := decode(r, &body); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	res, err := h.Jobs.Invite(r.Context(), ps.ByName("id"), body.InviteeID)
	respond(w, http.StatusCreated, res, err)
}

func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.AcceptInvitation(r.Context(), ps.ByName("id"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) RejectInvitation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.RejectInvitation(r.Context(), ps.ByName("id"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) Start(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.StartJob(r.Context(), ps.ByName("id"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) Finish(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Scores map[string]rating.Score `json:"scores"`
	}
	if err := decode(r, &body); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	res, err := h.Jobs.FinishJob(r.Context(), ps.ByName("id"), body.Scores)
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := h.Jobs.CancelJob(r.Context(), ps.ByName("id"))
	respond(w, http.StatusOK, res, err)
}

func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		FileRef string `json:"fileRef"`
		Message string `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	res, err := h.Jobs.Submit(r.Context(), ps.ByName("id"), body.FileRef, body.Message)
	respond(w, http.StatusCreated, res, err)
}

func (h *Handlers) ListSubmissions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	status := models.SubmissionStatus(r.URL.Query().Get("status"))
	out, err := h.Jobs.JobSubmissions(r.Context(), ps.ByName("id"), status)
	respond(w, http.StatusOK, out, err)
}

func (h *Handlers) Review(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Status  models.SubmissionStatus `json:"status"`
		Message string                  `json:"message"`
	}
	if err := decode(r, &body); err != nil {
		respond(w, 0, struct{}{}, err)
		return
	}
	res, err := h.Jobs.ReviewSubmission(r.Context(), ps.ByName("id"), body.Status, body.Message)
	respond(w, http.StatusOK, res, err)
}
