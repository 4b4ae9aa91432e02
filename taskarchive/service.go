// Package taskarchive implements the append-only, paginated historical
// record of completed tasks (spec §4.7).
package taskarchive

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "taskarchive")

// ArchivedSolution is the frozen form of a solver's submission, stored
// alongside the reward it ultimately earned.
type ArchivedSolution struct {
	Solver             core.Principal
	FilledInFields     []*string
	Rejected           bool
	RewardHours        e8s.E8s
	RewardStorypoints  e8s.E8s
}

// ArchivedTask is the versioned, immutable record appended for every
// task that reaches Archive stage. The original's ArchivedTask::V0001
// tag is preserved as the Version field so future schema changes stay
// self-describing on read.
type ArchivedTask struct {
	Version int

	ID          uint64
	Creator     core.Principal
	Title       string
	Description string
	CreatedAt   core.TimestampNs
	ArchivedAt  core.TimestampNs

	Solutions []ArchivedSolution
}

const currentVersion = 1

// Page is the response shape of GetArchivedTasks.
type Page struct {
	Entries []ArchivedTask
	Left    uint64
	Next    *core.Principal
}

// Service owns the append-only archive list exclusively.
type Service struct {
	mu sync.Mutex

	entries []ArchivedTask
	next    *core.Principal

	tasksCallerID string
}

// New builds an empty archive.
func New(tasksCallerID string) *Service {
	return &Service{tasksCallerID: tasksCallerID}
}

func (s *Service) authorizeTasks(callerID string) error {
	if callerID != s.tasksCallerID {
		return svcerr.Authorizationf("taskarchive: caller %q is not the tasks service", callerID)
	}
	return nil
}

// AppendBatch appends a batch of archived tasks in order, callable
// only by the Tasks service's archive pump (spec §4.1.2/§4.7).
func (s *Service) AppendBatch(callerID string, tasks []ArchivedTask) error {
	if err := s.authorizeTasks(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if t.Version == 0 {
			t.Version = currentVersion
		}
		s.entries = append(s.entries, t)
	}
	log.Info("archived task batch appended", "count", len(tasks), "total", len(s.entries))
	return nil
}

// SetNext wires the successor archive service used once this archive
// is considered full (spec §4.7's chained-archive design), callable
// only by the Tasks service.
func (s *Service) SetNext(callerID string, next *core.Principal) error {
	if err := s.authorizeTasks(callerID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = next
	return nil
}

// GetArchivedTasks returns a page of archived tasks (spec §4.7):
// reversed selects newest-first iteration order, skip/take page
// within that order.
func (s *Service) GetArchivedTasks(reversed bool, skip, take uint64) Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]ArchivedTask, len(s.entries))
	copy(ordered, s.entries)
	if reversed {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	total := uint64(len(ordered))
	if skip >= total {
		return Page{Entries: nil, Left: 0, Next: s.next}
	}
	end := skip + take
	if end > total {
		end = total
	}

	return Page{
		Entries: ordered[skip:end],
		Left:    total - end,
		Next:    s.next,
	}
}
