package tasks

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/tasks"
)

// Tasks exposes the Tasks service over HTTP (spec §4.1, §6).
type Tasks struct {
	svc *tasks.Service
}

func New(svc *tasks.Service) *Tasks {
	return &Tasks{svc: svc}
}

type solutionFieldReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"` // "md" | "url"
	UrlKind     string `json:"urlKind,omitempty"`
}

var urlKindByName = map[string]tasks.UrlKind{
	"any":    tasks.UrlKindAny,
	"github": tasks.UrlKindGitHub,
	"figma":  tasks.UrlKindFigma,
	"notion": tasks.UrlKindNotion,
	"twitter": tasks.UrlKindTwitter,
	"dfinityForum": tasks.UrlKindDfinityForum,
	"fortMajor":    tasks.UrlKindFortMajor,
}

func parseSolutionFields(reqs []solutionFieldReq) ([]tasks.SolutionField, error) {
	out := make([]tasks.SolutionField, len(reqs))
	for i, f := range reqs {
		sf := tasks.SolutionField{Name: f.Name, Description: f.Description}
		switch f.Kind {
		case "md":
			sf.Kind = tasks.FieldKindMd
		case "url":
			sf.Kind = tasks.FieldKindUrl
			uk, ok := urlKindByName[f.UrlKind]
			if !ok {
				return nil, utils.BadRequest(errInvalidUrlKind(f.UrlKind))
			}
			sf.UrlKind = uk
		default:
			return nil, utils.BadRequest(errInvalidFieldKind(f.Kind))
		}
		out[i] = sf
	}
	return out, nil
}

type createTaskReq struct {
	Title                string             `json:"title"`
	Description          string             `json:"description"`
	DaysToSolve          uint64             `json:"daysToSolve"`
	SolutionFields       []solutionFieldReq `json:"solutionFields"`
	TeamOnly             bool               `json:"teamOnly"`
	HoursBase            string             `json:"hoursBase"`
	StorypointsBase      string             `json:"storypointsBase"`
	StorypointsExtBudget string             `json:"storypointsExtBudget"`
}

func (t *Tasks) handleCreateTask(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var req createTaskReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	fields, err := parseSolutionFields(req.SolutionFields)
	if err != nil {
		return err
	}
	hoursBase, err := e8s.FromString(req.HoursBase)
	if err != nil {
		return utils.BadRequest(err)
	}
	spBase, err := e8s.FromString(req.StorypointsBase)
	if err != nil {
		return utils.BadRequest(err)
	}
	spExt, err := e8s.FromString(req.StorypointsExtBudget)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	id, err := t.svc.CreateTask(caller, req.Title, req.Description, req.DaysToSolve, fields,
		tasks.SolverConstraints{TeamOnly: req.TeamOnly}, hoursBase, spBase, spExt, now)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"id": id})
}

type editTaskReq struct {
	Title                *string            `json:"title"`
	Description          *string            `json:"description"`
	SolutionFields       []solutionFieldReq `json:"solutionFields"`
	TeamOnly             *bool              `json:"teamOnly"`
	HoursBase            *string            `json:"hoursBase"`
	StorypointsBase      *string            `json:"storypointsBase"`
	StorypointsExtBudget *string            `json:"storypointsExtBudget"`
}

func parseOptE8s(s *string) (*e8s.E8s, error) {
	if s == nil {
		return nil, nil
	}
	v, err := e8s.FromString(*s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *Tasks) handleEditTask(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req editTaskReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	edits := tasks.TaskEdits{Title: req.Title, Description: req.Description}
	if req.SolutionFields != nil {
		fields, ferr := parseSolutionFields(req.SolutionFields)
		if ferr != nil {
			return ferr
		}
		edits.SolutionFields = fields
	}
	if req.TeamOnly != nil {
		edits.SolverConstraints = &tasks.SolverConstraints{TeamOnly: *req.TeamOnly}
	}
	if edits.HoursBase, err = parseOptE8s(req.HoursBase); err != nil {
		return utils.BadRequest(err)
	}
	if edits.StorypointsBase, err = parseOptE8s(req.StorypointsBase); err != nil {
		return utils.BadRequest(err)
	}
	if edits.StorypointsExtBudget, err = parseOptE8s(req.StorypointsExtBudget); err != nil {
		return utils.BadRequest(err)
	}
	if err := t.svc.EditTask(caller, utils.ServiceCaller(r), id, edits); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type finishEditTaskReq struct {
	FinalStorypointsExtBudget string `json:"finalStorypointsExtBudget"`
}

func (t *Tasks) handleFinishEditTask(w http.ResponseWriter, r *http.Request) error {
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req finishEditTaskReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	budget, err := e8s.FromString(req.FinalStorypointsExtBudget)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	if err := t.svc.FinishEditTask(utils.ServiceCaller(r), id, budget, now); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type attachReq struct {
	Detach bool `json:"detach"`
}

func (t *Tasks) handleAttachToTask(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req attachReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	if err := t.svc.AttachToTask(caller, id, req.Detach); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type solveTaskReq struct {
	FilledInFields []*string `json:"filledInFields"`
}

func (t *Tasks) handleSolveTask(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req solveTaskReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	if err := t.svc.SolveTask(caller, id, req.FilledInFields, now); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (t *Tasks) handleFinishSolveTask(w http.ResponseWriter, r *http.Request) error {
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := t.svc.FinishSolveTask(utils.ServiceCaller(r), id); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type evaluationReq struct {
	Solver string  `json:"solver"`
	Score  *string `json:"score"`
}

type evaluateTaskReq struct {
	Evaluations []evaluationReq `json:"evaluations"`
}

func (t *Tasks) handleEvaluateTask(w http.ResponseWriter, r *http.Request) error {
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req evaluateTaskReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	evaluations := make([]tasks.Evaluation, len(req.Evaluations))
	for i, e := range req.Evaluations {
		solver, perr := core.ParsePrincipal(e.Solver)
		if perr != nil {
			return utils.BadRequest(perr)
		}
		score, serr := parseOptE8s(e.Score)
		if serr != nil {
			return utils.BadRequest(serr)
		}
		evaluations[i] = tasks.Evaluation{Solver: solver, Score: score}
	}
	rewards, err := t.svc.EvaluateTask(utils.ServiceCaller(r), id, evaluations)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, rewards)
}

func (t *Tasks) handleDeleteTask(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	id, err := parseTaskID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := t.svc.DeleteTask(caller, utils.ServiceCaller(r), id); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (t *Tasks) handleGetTasksByID(w http.ResponseWriter, r *http.Request) error {
	raw := r.URL.Query()["id"]
	ids := make([]tasks.TaskID, 0, len(raw))
	for _, s := range raw {
		id, err := parseTaskID(s)
		if err != nil {
			return utils.BadRequest(err)
		}
		ids = append(ids, id)
	}
	return utils.WriteJSON(w, t.svc.GetTasksByID(ids))
}

func (t *Tasks) handleGetTaskIDs(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, t.svc.GetTaskIDs())
}

func (t *Tasks) handleGetTasksStats(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, t.svc.GetTasksStats())
}

func (t *Tasks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/tasks").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleCreateTask))
	sub.Path("/tasks/{id}").Methods("PATCH").HandlerFunc(utils.WrapHandlerFunc(t.handleEditTask))
	sub.Path("/tasks/{id}/finish-edit").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleFinishEditTask))
	sub.Path("/tasks/{id}/attach").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleAttachToTask))
	sub.Path("/tasks/{id}/solve").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleSolveTask))
	sub.Path("/tasks/{id}/finish-solve").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleFinishSolveTask))
	sub.Path("/tasks/{id}/evaluate").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(t.handleEvaluateTask))
	sub.Path("/tasks/{id}").Methods("DELETE").HandlerFunc(utils.WrapHandlerFunc(t.handleDeleteTask))
	sub.Path("/tasks").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(t.handleGetTasksByID))
	sub.Path("/task-ids").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(t.handleGetTaskIDs))
	sub.Path("/stats").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(t.handleGetTasksStats))
}

func parseTaskID(s string) (tasks.TaskID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return tasks.TaskID(v), nil
}
