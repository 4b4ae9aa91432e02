package workreports

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/liquiddemocracy"
	"github.com/fort-major/dao/workreports"
)

// WorkReports exposes the Work Reports service over HTTP (spec §4.8,
// §6).
type WorkReports struct {
	svc *workreports.Service
}

func New(svc *workreports.Service) *WorkReports {
	return &WorkReports{svc: svc}
}

type createReportReq struct {
	Topic          uint32 `json:"topic"`
	Title          string `json:"title"`
	Goal           string `json:"goal"`
	Description    string `json:"description"`
	Result         string `json:"result"`
	WantRep        bool   `json:"wantRep"`
	Nonce          uint64 `json:"nonce"`
	Pow            string `json:"pow"` // hex-encoded 32-byte digest
	TotalRepSupply string `json:"totalRepSupply"`
}

func (wr *WorkReports) handleCreateReport(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var req createReportReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	powBytes, err := hex.DecodeString(req.Pow)
	if err != nil || len(powBytes) != 32 {
		return utils.BadRequest(errInvalidPow())
	}
	var pow [32]byte
	copy(pow[:], powBytes)
	totalRepSupply, err := e8s.FromString(req.TotalRepSupply)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	id, err := wr.svc.CreateReport(caller, liquiddemocracy.DecisionTopicID(req.Topic),
		req.Title, req.Goal, req.Description, req.Result, req.WantRep, req.Nonce, pow, totalRepSupply, now)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"id": id})
}

type delegationNodeReq struct {
	Principal  string                    `json:"principal"`
	Reputation string                    `json:"reputation"`
	TopicSet   *liquiddemocracy.TopicSet `json:"topicSet"`
	Delegators []delegationNodeReq       `json:"delegators"`
}

func (d delegationNodeReq) toNode() (*workreports.DelegationNode, error) {
	p, err := core.ParsePrincipal(d.Principal)
	if err != nil {
		return nil, err
	}
	rep, err := e8s.FromString(d.Reputation)
	if err != nil {
		return nil, err
	}
	node := &workreports.DelegationNode{Principal: p, Reputation: rep, TopicSet: d.TopicSet}
	for _, c := range d.Delegators {
		child, err := c.toNode()
		if err != nil {
			return nil, err
		}
		node.Delegators = append(node.Delegators, child)
	}
	return node, nil
}

type evaluateReq struct {
	Tree   delegationNodeReq `json:"tree"`
	Score  string            `json:"score"`
	IsSpam bool              `json:"isSpam"`
}

func (wr *WorkReports) handleEvaluate(w http.ResponseWriter, r *http.Request) error {
	id, err := parseReportID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	var req evaluateReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	tree, err := req.Tree.toNode()
	if err != nil {
		return utils.BadRequest(err)
	}
	score, err := e8s.FromString(req.Score)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	if err := wr.svc.Evaluate(id, tree, score, req.IsSpam, now); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (wr *WorkReports) handleGetReport(w http.ResponseWriter, r *http.Request) error {
	id, err := parseReportID(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	rep, ok := wr.svc.GetReport(id)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, rep)
}

func optTopic(r *http.Request) *liquiddemocracy.DecisionTopicID {
	s := r.URL.Query().Get("topic")
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return nil
	}
	id := liquiddemocracy.DecisionTopicID(v)
	return &id
}

func (wr *WorkReports) handleListReports(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, wr.svc.ListReports(optTopic(r)))
}

func (wr *WorkReports) handleGetArchivedReports(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, wr.svc.GetArchivedReports(optTopic(r)))
}

func (wr *WorkReports) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/reports").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(wr.handleCreateReport))
	sub.Path("/reports/{id}/evaluate").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(wr.handleEvaluate))
	sub.Path("/reports/{id}").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(wr.handleGetReport))
	sub.Path("/reports").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(wr.handleListReports))
	sub.Path("/archived-reports").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(wr.handleGetArchivedReports))
}

func parseReportID(s string) (workreports.ReportID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return workreports.ReportID(v), nil
}
