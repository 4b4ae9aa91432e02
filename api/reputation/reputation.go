package reputation

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/liquiddemocracy"
	"github.com/fort-major/dao/reputation"
)

// Reputation exposes the Reputation service over HTTP (spec §4.3, §6),
// including the two-phase GetRepProof orchestration: part 1 asks the
// store whether a fresh follower cache is needed, and if so this layer
// (not the service itself, which must stay non-blocking) fetches
// followers from liquid democracy before retrying part 2.
type Reputation struct {
	svc       *reputation.Service
	followers reputation.FollowersResolver
}

func New(svc *reputation.Service, followers reputation.FollowersResolver) *Reputation {
	return &Reputation{svc: svc, followers: followers}
}

func (rep *Reputation) handleGetBalance(w http.ResponseWriter, r *http.Request) error {
	id, err := core.ParsePrincipal(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	balance, err := rep.svc.GetBalance(id)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, balance)
}

func (rep *Reputation) handleGetTotalSupply(w http.ResponseWriter, r *http.Request) error {
	total, err := rep.svc.GetTotalSupply()
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, total)
}

func (rep *Reputation) handleGetRepProof(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	selector := reputation.SelectorOnlyMe
	if r.URL.Query().Get("withFollowers") == "true" {
		selector = reputation.SelectorWithFollowers
	}
	now := core.TimestampNs(time.Now().UnixNano())

	if err := rep.svc.GetRepProofPart1(caller, selector, now); err != nil {
		if _, stale := err.(*reputation.RefreshNeeded); stale {
			rep.svc.RefreshFollowerCache(caller, rep.resolveFollowerTopics(caller), now)
		} else {
			return utils.WriteServiceError(err)
		}
	}

	proof, err := rep.svc.GetRepProofPart2(caller, selector)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, proof)
}

// resolveFollowerTopics asks liquid democracy for caller's followers and
// the topic predicate each one follows caller under, the shape
// RefreshFollowerCache needs.
func (rep *Reputation) resolveFollowerTopics(caller core.Principal) map[core.Principal]*liquiddemocracy.TopicSet {
	followerSet := rep.followers.GetFollowersOf([]core.Principal{caller})[caller]
	out := make(map[core.Principal]*liquiddemocracy.TopicSet, len(followerSet))
	for follower := range followerSet {
		topicSet, err := rep.followers.TopicSetOf(follower, caller)
		if err != nil {
			continue
		}
		out[follower] = topicSet
	}
	return out
}

func (rep *Reputation) handleGetStats(w http.ResponseWriter, r *http.Request) error {
	total, err := rep.svc.GetTotalSupply()
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"totalSupply": total})
}

func (rep *Reputation) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/balance/{id}").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(rep.handleGetBalance))
	sub.Path("/total-supply").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(rep.handleGetTotalSupply))
	sub.Path("/proof").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(rep.handleGetRepProof))
	sub.Path("/stats").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(rep.handleGetStats))
}
