package bank

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fort-major/dao/api/utils"
	"github.com/fort-major/dao/bank"
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

// Bank exposes the Bank service over HTTP (spec §4.5, §6).
type Bank struct {
	svc *bank.Service
}

func New(svc *bank.Service) *Bank {
	return &Bank{svc: svc}
}

type setExchangeRateReq struct {
	From string `json:"from"`
	Into string `json:"into"`
	Rate string `json:"rate"`
}

func (b *Bank) handleSetExchangeRate(w http.ResponseWriter, r *http.Request) error {
	var req setExchangeRateReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	from, err := parseSwapFrom(req.From)
	if err != nil {
		return utils.BadRequest(err)
	}
	into, err := parseSwapInto(req.Into)
	if err != nil {
		return utils.BadRequest(err)
	}
	rate, err := e8s.FromString(req.Rate)
	if err != nil {
		return utils.BadRequest(err)
	}
	now := core.TimestampNs(time.Now().UnixNano())
	if err := b.svc.SetExchangeRate(utils.ServiceCaller(r), from, into, rate, now); err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, utils.M{"ok": true})
}

func (b *Bank) handleGetExchangeRates(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, b.svc.GetExchangeRates())
}

func (b *Bank) handleGetFmjStats(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteJSON(w, b.svc.GetFmjStats())
}

type swapRewardsReq struct {
	From string `json:"from"`
	Into string `json:"into"`
	Qty  string `json:"qty"`
}

func (b *Bank) handleSwapRewards(w http.ResponseWriter, r *http.Request) error {
	caller, err := utils.Caller(r)
	if err != nil {
		return err
	}
	var req swapRewardsReq
	if err := utils.ParseJSON(r.Body, &req); err != nil {
		return utils.BadRequest(err)
	}
	from, err := parseSwapFrom(req.From)
	if err != nil {
		return utils.BadRequest(err)
	}
	into, err := parseSwapInto(req.Into)
	if err != nil {
		return utils.BadRequest(err)
	}
	qty, err := e8s.FromString(req.Qty)
	if err != nil {
		return utils.BadRequest(err)
	}
	result, err := b.svc.SwapRewards(caller, from, into, qty, core.TimestampNs(time.Now().UnixNano()))
	if err != nil {
		return utils.WriteServiceError(err)
	}
	return utils.WriteJSON(w, result)
}

func (b *Bank) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("/exchange-rate").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(b.handleSetExchangeRate))
	sub.Path("/exchange-rates").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(b.handleGetExchangeRates))
	sub.Path("/fmj-stats").Methods("GET").HandlerFunc(utils.WrapHandlerFunc(b.handleGetFmjStats))
	sub.Path("/swap-rewards").Methods("POST").HandlerFunc(utils.WrapHandlerFunc(b.handleSwapRewards))
}
