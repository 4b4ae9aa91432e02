package votings

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/votings"
)

var log = log15.New("module", "api/votings")

// Votings exposes the Votings service over HTTP (spec §4.2, §6).
type Votings struct {
	svc *votings.Service
}

func New(svc *votings.Service) *Votings {
	return &Votings{svc: svc}
}

type solutionRefReq struct {
	TaskID uint64 `json:"taskId"`
	Solver string `json:"solver"`
}

type startVotingReq struct {
	Kind           string           `json:"kind"` // "finishEditTask" | "evaluateTask"
	TaskID         uint64           `json:"taskId"`
	Solutions      []solutionRefReq `json:"solutions,omitempty"`
	TotalRepSupply string           `json:"totalRepSupply"`
}

func (v *Votings) handleStartVoting(w http.ResponseWriter, r *http.Request) error {
	var req startVotingReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	totalRepSupply, err := e8s.FromString(req.TotalRepSupply)
	if err != nil {
		return utils.BadRequest(err)
	}

	var kind votings.Kind
	numOptions := 1
	switch req.Kind {
	case "finishEditTask":
		kind = votings.Kind{Tag: votings.KindFinishEditTask, TaskID: req.TaskID}
	case "evaluateTask":
		solutions := make([]votings.SolutionRef, len(req.Solutions))
		for i, s := range req.Solutions {
			solver, perr := core.ParsePrincipal(s.Solver)
			if perr != nil {
				return utils.BadRequest(perr)
			}
			solutions[i] = votings.SolutionRef{TaskID: s.TaskID, Solver: solver}
		}
		kind = votings.Kind{Tag: votings.KindEvaluateTask, EvaluateTaskID: req.TaskID, Solutions: solutions}
		numOptions = len(solutions)
	default:
		return utils.BadRequest(errUnknownKind(req.Kind))
	}

	now := core.TimestampNs(time.Now().UnixNano())
	id, err := v.svc.StartVoting(kind, numOptions, totalRepSupply, now)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	v.scheduleResolve(id)
	return utils.WriteJSON(w, utils.M{"id": id})
}

// scheduleResolve arms the one-shot timer that fires TimerResolve once
// a voting's duration elapses without reaching consensus early (spec
// §4.2's "resolves automatically once its deadline passes").
func (v *Votings) scheduleResolve(id votings.VotingID) {
	voting, ok := v.svc.GetVoting(id)
	if !ok {
		return
	}
	time.AfterFunc(time.Duration(voting.Duration), func() {
		now := core.TimestampNs(time.Now().UnixNano())
		if err := v.svc.TimerResolve(id, now); err != nil {
			log.Error("voting timer resolve failed", "id", id, "err", err)
		}
	})
}

type castVoteReq struct {
	Option          int     `json:"option"`
	ApprovalLevel   *string `json:"approvalLevel"`
	VoterReputation string  `json:"voterReputation"`
}

func (v *Votings) handleCastVote(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	id, err := parseVotingID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req castVoteReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	var approvalLevel *e8s.E8s
	if req.ApprovalLevel != nil {
		val, perr := e8s.FromString(*req.ApprovalLevel)
		if perr != nil {
			return utils.BadRequest(perr)
		}
		approvalLevel = &val
	}
	voterRep, err := e8s.FromString(req.VoterReputation)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	if err := v.svc.CastVote(caller, id, req.Option, approvalLevel, voterRep, now); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (v *Votings) handleGetVoting(w http.ResponseWriter, r *http.Request) error {
	id, err := parseVotingID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	voting, ok := v.svc.GetVoting(id)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, voting)
}

func (v *Votings) handleGetEvents(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, v.svc.GetEvents())
}

func (v *Votings) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/votings").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(v.handleStartVoting))
	sub.Path("/votings/{id}/vote").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(v.handleCastVote))
	sub.Path("/votings/{id}").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(v.handleGetVoting))
	sub.Path("/events").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(v.handleGetEvents))
}

func parseVotingID(s string) (votings.VotingID, error) {
	val, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return votings.VotingID(val), nil
}
