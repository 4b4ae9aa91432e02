package liquiddemocracy

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/liquiddemocracy"
)

// LiquidDemocracy exposes the Liquid Democracy service over HTTP
// (spec §4.6, §6).
type LiquidDemocracy struct {
	svc *liquiddemocracy.Service
}

func New(svc *liquiddemocracy.Service) *LiquidDemocracy {
	return &LiquidDemocracy{svc: svc}
}

func (l *LiquidDemocracy) handleTopics(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, l.svc.Topics())
}

type followReq struct {
	Followee string                   `json:"followee"`
	Topics   *liquiddemocracy.TopicSet `json:"topics"`
}

func (l *LiquidDemocracy) handleFollow(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var req followReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	followee, err := core.ParsePrincipal(req.Followee)
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := l.svc.Follow(caller, followee, req.Topics); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (l *LiquidDemocracy) handleGetFollowersOf(w http.ResponseWriter, r *http.Request) error {
	raw := r.URL.Query()["id"]
	ids := make([]core.Principal, 0, len(raw))
	for _, s := range raw {
		id, err := core.ParsePrincipal(s)
		if err != nil {
			return utils.BadRequest(err)
		}
		ids = append(ids, id)
	}
	return utils.WriteJSON(w, l.svc.GetFollowersOf(ids))
}

func (l *LiquidDemocracy) handleGetFollowedByMe(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var topicIDs []liquiddemocracy.DecisionTopicID
	for _, s := range r.URL.Query()["topic"] {
		id, perr := parseTopicID(s)
		if perr != nil {
			return utils.BadRequest(perr)
		}
		topicIDs = append(topicIDs, id)
	}
	followees, err := l.svc.GetFollowedByMe(caller, topicIDs)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, followees)
}

func (l *LiquidDemocracy) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/topics").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(l.handleTopics))
	sub.Path("/follow").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(l.handleFollow))
	sub.Path("/followers").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(l.handleGetFollowersOf))
	sub.Path("/followed-by-me").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(l.handleGetFollowedByMe))
}

func parseTopicID(s string) (liquiddemocracy.DecisionTopicID, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return liquiddemocracy.DecisionTopicID(id), nil
}
