package humans

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "humans")

const (
	nameMinGraphemes = 3
	nameMaxGraphemes = 128
	avatarMaxBytes   = 5120
)

// RewardEntry is one (solver, reward_hours, reward_storypoints,
// want_rep) entry of a MintRewards call.
type RewardEntry struct {
	Solver             core.Principal
	RewardHours        e8s.E8s
	RewardStorypoints  e8s.E8s
	WantRep            bool
}

// Service owns the profile map and team set exclusively.
type Service struct {
	mu sync.Mutex

	profiles map[core.Principal]*Profile
	team     map[core.Principal]struct{}

	totalHoursMinted       e8s.E8s
	totalStorypointsMinted e8s.E8s

	allowedMinters map[string]struct{} // Tasks, WorkReports
	allowedBank    string              // Bank service id, for Spend/RefundRewards
}

// New builds an empty Humans service.
func New(allowedMinters []string, bankCallerID string) *Service {
	allowed := make(map[string]struct{}, len(allowedMinters))
	for _, m := range allowedMinters {
		allowed[m] = struct{}{}
	}
	return &Service{
		profiles:       make(map[core.Principal]*Profile),
		team:           make(map[core.Principal]struct{}),
		allowedMinters: allowed,
		allowedBank:    bankCallerID,
	}
}

func validateName(name *string) error {
	if name == nil {
		return nil
	}
	l := core.GraphemeLen(*name)
	if l < nameMinGraphemes || l > nameMaxGraphemes {
		return svcerr.Validationf("name must be %d-%d graphemes, got %d", nameMinGraphemes, nameMaxGraphemes, l)
	}
	return nil
}

func validateAvatar(avatar *string) error {
	if avatar == nil {
		return nil
	}
	if len(*avatar) > avatarMaxBytes {
		return svcerr.Validationf("avatar_src must be at most %d bytes, got %d", avatarMaxBytes, len(*avatar))
	}
	return nil
}

// Register creates caller's profile (spec §4.4).
func (s *Service) Register(caller core.Principal, name, avatarSrc *string, now core.TimestampNs) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateAvatar(avatarSrc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[caller] = newProfile(caller, name, avatarSrc, now)
	log.Info("human registered", "caller", caller)
	return nil
}

// OptStr models Option<Option<T>>: Present false means "leave
// unchanged", Present with a nil Value means "clear", Present with a
// non-nil Value means "set".
type OptStr struct {
	Present bool
	Value   *string
}

// EditProfile applies optional overrides, distinguishing "leave" from
// "clear" via OptStr (spec §4.4).
func (s *Service) EditProfile(caller core.Principal, newName, newAvatar OptStr) error {
	if newName.Present {
		if err := validateName(newName.Value); err != nil {
			return err
		}
	}
	if newAvatar.Present {
		if err := validateAvatar(newAvatar.Value); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[caller]
	if !ok {
		return svcerr.Statef("humans: no profile for caller %s", caller)
	}
	if newName.Present {
		p.Name = newName.Value
	}
	if newAvatar.Present {
		p.AvatarSrc = newAvatar.Value
	}
	return nil
}

func (s *Service) authorizeMinter(callerID string) error {
	if _, ok := s.allowedMinters[callerID]; !ok {
		return svcerr.Authorizationf("humans: caller %q is not an authorized minter", callerID)
	}
	return nil
}

// MintRewards increments balances/earned totals for every solver with a
// profile; entries for unregistered principals are dropped silently by
// design (spec §4.4).
func (s *Service) MintRewards(callerID string, entries []RewardEntry) error {
	if err := s.authorizeMinter(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mintedHours, mintedStorypoints := e8s.Zero(), e8s.Zero()
	for _, entry := range entries {
		p, ok := s.profiles[entry.Solver]
		if !ok {
			continue
		}
		mintedHours = e8s.Add(mintedHours, entry.RewardHours)
		mintedStorypoints = e8s.Add(mintedStorypoints, entry.RewardStorypoints)
		p.mintRewards(entry.RewardHours, entry.RewardStorypoints)
	}
	s.totalHoursMinted = e8s.Add(s.totalHoursMinted, mintedHours)
	s.totalStorypointsMinted = e8s.Add(s.totalStorypointsMinted, mintedStorypoints)
	return nil
}

func (s *Service) authorizeBank(callerID string) error {
	if callerID != s.allowedBank {
		return svcerr.Authorizationf("humans: caller %q is not the bank service", callerID)
	}
	return nil
}

// SpendRewards deducts hours/storypoints from spender's balance,
// failing fast if it would go negative (spec §4.4/§4.5).
func (s *Service) SpendRewards(callerID string, spender core.Principal, hours, storypoints e8s.E8s) error {
	if err := s.authorizeBank(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[spender]
	if !ok {
		return svcerr.Statef("humans: no profile for spender %s", spender)
	}
	return p.spendRewards(hours, storypoints)
}

// RefundRewards restores hours/storypoints to spender's balance (the
// compensating action of Bank.SwapRewards' saga).
func (s *Service) RefundRewards(callerID string, spender core.Principal, hours, storypoints e8s.E8s) error {
	if err := s.authorizeBank(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[spender]
	if !ok {
		return svcerr.Statef("humans: no profile for spender %s", spender)
	}
	p.refundRewards(hours, storypoints)
	return nil
}

var (
	minWeeklyHours = e8s.FromUint64(1 * 100_000_000)
	maxWeeklyHours = e8s.FromUint64(40 * 100_000_000)
)

// Employ adds candidate to the team set and starts their employment
// record. hoursAWeekCommitment is a whole-hour e8s value (1..40 hours,
// i.e. 1*10^8..40*10^8 raw magnitude) — spec §9's open question on
// WeeklyRateHoursE8sContext resolves to whole hours, not raw e8s units
// 1..40.
func (s *Service) Employ(candidate core.Principal, hoursAWeekCommitment e8s.E8s, now core.TimestampNs) error {
	if e8s.Cmp(hoursAWeekCommitment, minWeeklyHours) < 0 || e8s.Cmp(hoursAWeekCommitment, maxWeeklyHours) > 0 {
		return svcerr.Validationf("humans: hours_a_week_commitment must be 1-40 hours, got %s", hoursAWeekCommitment.Display())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[candidate]
	if !ok {
		return svcerr.Statef("humans: no profile for candidate %s", candidate)
	}
	s.team[candidate] = struct{}{}
	p.employ(hoursAWeekCommitment, now)
	return nil
}

// Unemploy removes teamMember from the team set and clears their
// employment record.
func (s *Service) Unemploy(teamMember core.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[teamMember]
	if !ok {
		return svcerr.Statef("humans: no profile for team member %s", teamMember)
	}
	delete(s.team, teamMember)
	p.unemploy()
	return nil
}

// IsTeamMember reports whether p is currently in the team set — used by
// Tasks to enforce team-only CreateTask/SolveTask checks.
func (s *Service) IsTeamMember(p core.Principal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.team[p]
	return ok
}

// GetProfile is the supplemented single-profile query.
func (s *Service) GetProfile(id core.Principal) (*Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ListTeam is the supplemented team-roster query.
func (s *Service) ListTeam() []core.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Principal, 0, len(s.team))
	for p := range s.team {
		out = append(out, p)
	}
	return out
}

// ProfileProof is the in-process form of GetProfileProofs' certified
// reply content (spec §4.4); the proof/HTTP layer signs and encodes it.
type ProfileProof struct {
	ID                    core.Principal
	IsTeamMember          bool
	Reputation            e8s.E8s
	ReputationTotalSupply e8s.E8s
}

// GetProfileProofs builds the proof body for caller. Humans' own
// notion of "reputation total supply" is the sum of everything it has
// minted in hours+storypoints, which is intentionally independent of
// (and never decayed by) the Reputation service's own, decaying
// balance — see spec §8 invariant 2's note.
func (s *Service) GetProfileProofs(caller core.Principal) (*ProfileProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[caller]
	if !ok {
		return nil, svcerr.Statef("humans: no profile for caller %s", caller)
	}
	return &ProfileProof{
		ID:                    caller,
		IsTeamMember:          p.isEmployed(),
		Reputation:            p.Reputation,
		ReputationTotalSupply: e8s.Add(s.totalHoursMinted, s.totalStorypointsMinted),
	}, nil
}
