// Package humans implements identity, profile, employment, and the
// hour/storypoint ledger (spec §4.4).
package humans

import (
	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

// Employment records a team member's weekly-hour commitment and the
// hours they've earned while employed.
type Employment struct {
	EmployedAt                   core.TimestampNs
	HoursAWeekCommitment         e8s.E8s
	HoursEarnedDuringEmployment  e8s.E8s
}

// Profile is a registered human's full account state.
type Profile struct {
	ID                 core.Principal
	Name               *string
	AvatarSrc          *string
	RegisteredAt       core.TimestampNs
	HoursBalance       e8s.E8s
	StorypointsBalance e8s.E8s
	Reputation         e8s.E8s
	EarnedHours        e8s.E8s
	EarnedStorypoints  e8s.E8s
	Employment         *Employment
}

func newProfile(id core.Principal, name, avatarSrc *string, now core.TimestampNs) *Profile {
	return &Profile{
		ID:           id,
		Name:         name,
		AvatarSrc:    avatarSrc,
		RegisteredAt: now,
	}
}

func (p *Profile) mintRewards(hours, storypoints e8s.E8s) {
	p.Reputation = e8s.Add(p.Reputation, e8s.Add(hours, storypoints))
	p.EarnedHours = e8s.Add(p.EarnedHours, hours)
	p.EarnedStorypoints = e8s.Add(p.EarnedStorypoints, storypoints)
	p.HoursBalance = e8s.Add(p.HoursBalance, hours)
	p.StorypointsBalance = e8s.Add(p.StorypointsBalance, storypoints)
	if p.Employment != nil {
		p.Employment.HoursEarnedDuringEmployment = e8s.Add(p.Employment.HoursEarnedDuringEmployment, hours)
	}
}

func (p *Profile) spendRewards(hours, storypoints e8s.E8s) error {
	newHours, err := e8s.Sub(p.HoursBalance, hours)
	if err != nil {
		return err
	}
	newStorypoints, err := e8s.Sub(p.StorypointsBalance, storypoints)
	if err != nil {
		return err
	}
	p.HoursBalance = newHours
	p.StorypointsBalance = newStorypoints
	return nil
}

func (p *Profile) refundRewards(hours, storypoints e8s.E8s) {
	p.HoursBalance = e8s.Add(p.HoursBalance, hours)
	p.StorypointsBalance = e8s.Add(p.StorypointsBalance, storypoints)
}

func (p *Profile) employ(hoursAWeekCommitment e8s.E8s, now core.TimestampNs) {
	p.Employment = &Employment{EmployedAt: now, HoursAWeekCommitment: hoursAWeekCommitment}
}

func (p *Profile) unemploy() {
	p.Employment = nil
}

func (p *Profile) isEmployed() bool { return p.Employment != nil }

// Clone returns a deep-enough copy safe to hand to a caller outside the
// service's lock.
func (p *Profile) Clone() *Profile {
	cp := *p
	if p.Name != nil {
		n := *p.Name
		cp.Name = &n
	}
	if p.AvatarSrc != nil {
		a := *p.AvatarSrc
		cp.AvatarSrc = &a
	}
	if p.Employment != nil {
		e := *p.Employment
		cp.Employment = &e
	}
	return &cp
}
