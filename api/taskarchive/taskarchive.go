package taskarchive

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/taskarchive"
)

// TaskArchive exposes the Task Archive service over HTTP (spec §4.7,
// §6).
type TaskArchive struct {
	svc *taskarchive.Service
}

func New(svc *taskarchive.Service) *TaskArchive {
	return &TaskArchive{svc: svc}
}

type appendBatchReq struct {
	Tasks []taskarchive.ArchivedTask `json:"tasks"`
}

func (t *TaskArchive) handleAppendBatch(w http.ResponseWriter, r *http.Request) error {
	var req appendBatchReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	if err := t.svc.AppendBatch(utils.ServiceCaller(r), req.Tasks); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type setNextReq struct {
	Next *string `json:"next"`
}

func (t *TaskArchive) handleSetNext(w http.ResponseWriter, r *http.Request) error {
	var req setNextReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	var next *core.Principal
	if req.Next != nil {
		p, err := core.ParsePrincipal(*req.Next)
		if err != nil {
			return utils.BadRequest(err)
		}
		next = &p
	}
	if err := t.svc.SetNext(utils.ServiceCaller(r), next); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (t *TaskArchive) handleGetArchivedTasks(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	reversed := q.Get("reversed") == "true"
	skip, err := parseUint(q.Get("skip"), 0)
	if err != nil {
		return utils.BadRequest(err)
	}
	take, err := parseUint(q.Get("take"), 50)
	if err != nil {
		return utils.BadRequest(err)
	}
	return utils.WriteJSON(w, t.svc.GetArchivedTasks(reversed, skip, take))
}

func (t *TaskArchive) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/append-batch").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleAppendBatch))
	sub.Path("/next").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleSetNext))
	sub.Path("/tasks").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(t.handleGetArchivedTasks))
}

func parseUint(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
