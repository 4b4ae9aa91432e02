package humans

import (
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

func e8sFromDisplay(s string) (e8s.E8s, error) {
	return e8s.FromString(s)
}

func parseSpendReq(req spendRewardsReq) (spender core.Principal, hours, storypoints e8s.E8s, err error) {
	spender, err = core.ParsePrincipal(req.Spender)
	if err != nil {
		return
	}
	hours, err = e8s.FromString(req.Hours)
	if err != nil {
		return
	}
	storypoints, err = e8s.FromString(req.Storypoints)
	return
}
