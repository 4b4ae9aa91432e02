package humans

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/humans"
)

// Humans exposes the Humans service over HTTP (spec §4.4, §6).
type Humans struct {
	svc *humans.Service
}

func New(svc *humans.Service) *Humans {
	return &Humans{svc: svc}
}

type registerReq struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

func (h *Humans) handleRegister(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var req registerReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	if err := h.svc.Register(caller, req.Name, req.Avatar, core.TimestampNs(time.Now().UnixNano())); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type optStrReq struct {
	Present bool    `json:"present"`
	Value   *string `json:"value"`
}

type editProfileReq struct {
	Name   optStrReq `json:"name"`
	Avatar optStrReq `json:"avatar"`
}

func (h *Humans) handleEditProfile(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var req editProfileReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	name := humans.OptStr{Present: req.Name.Present, Value: req.Name.Value}
	avatar := humans.OptStr{Present: req.Avatar.Present, Value: req.Avatar.Value}
	if err := h.svc.EditProfile(caller, name, avatar); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type mintRewardsReq struct {
	Entries []humans.RewardEntry `json:"entries"`
}

func (h *Humans) handleMintRewards(w http.ResponseWriter, r *http.Request) error {
	var req mintRewardsReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	if err := h.svc.MintRewards(utils.ServiceCaller(r), req.Entries); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type spendRewardsReq struct {
	Spender     string `json:"spender"`
	Hours       string `json:"hours"`
	Storypoints string `json:"storypoints"`
}

func (h *Humans) handleSpendRewards(w http.ResponseWriter, r *http.Request) error {
	var req spendRewardsReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	spender, hours, storypoints, err := parseSpendReq(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := h.svc.SpendRewards(utils.ServiceCaller(r), spender, hours, storypoints); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (h *Humans) handleRefundRewards(w http.ResponseWriter, r *http.Request) error {
	var req spendRewardsReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	spender, hours, storypoints, err := parseSpendReq(req)
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := h.svc.RefundRewards(utils.ServiceCaller(r), spender, hours, storypoints); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

type employReq struct {
	Candidate            string `json:"candidate"`
	HoursAWeekCommitment string `json:"hoursAWeekCommitment"`
}

func (h *Humans) handleEmploy(w http.ResponseWriter, r *http.Request) error {
	var req employReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	candidate, err := core.ParsePrincipal(req.Candidate)
	if err != nil {
		return utils.BadRequest(err)
	}
	commitment, err := e8sFromDisplay(req.HoursAWeekCommitment)
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := h.svc.Employ(candidate, commitment, core.TimestampNs(time.Now().UnixNano())); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (h *Humans) handleUnemploy(w http.ResponseWriter, r *http.Request) error {
	teamMember, err := core.ParsePrincipal(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	if err := h.svc.Unemploy(teamMember); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (h *Humans) handleGetProfile(w http.ResponseWriter, r *http.Request) error {
	id, err := core.ParsePrincipal(mux.Vars(r)["id"])
	if err != nil {
		return utils.BadRequest(err)
	}
	p, ok := h.svc.GetProfile(id)
	if !ok {
		return utils.WriteJSON(w, nil)
	}
	return utils.WriteJSON(w, p)
}

func (h *Humans) handleListTeam(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, h.svc.ListTeam())
}

func (h *Humans) handleGetProfileProofs(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	proof, err := h.svc.GetProfileProofs(caller)
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, proof)
}

func (h *Humans) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/register").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleRegister))
	sub.Path("/edit-profile").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleEditProfile))
	sub.Path("/mint-rewards").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleMintRewards))
	sub.Path("/spend-rewards").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleSpendRewards))
	sub.Path("/refund-rewards").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleRefundRewards))
	sub.Path("/employ").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleEmploy))
	sub.Path("/unemploy/{id}").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(h.handleUnemploy))
	sub.Path("/profile/{id}").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(h.handleGetProfile))
	sub.Path("/team").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(h.handleListTeam))
	sub.Path("/profile-proofs").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(h.handleGetProfileProofs))
}
