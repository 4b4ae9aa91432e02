// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/humans"
	"github.com/fort-major/dao/reputation"
	"github.com/fort-major/dao/taskarchive"
	"github.com/fort-major/dao/tasks"
	"github.com/fort-major/dao/votings"
)

// humansClientAdapter satisfies bank.HumansClient by fixing Bank's own
// service id as the caller of Humans' Spend/RefundRewards RPCs.
type humansClientAdapter struct {
	humans   *humans.Service
	callerID string
}

func (a *humansClientAdapter) SpendRewards(spender core.Principal, hours, storypoints e8s.E8s) error {
	return a.humans.SpendRewards(a.callerID, spender, hours, storypoints)
}

func (a *humansClientAdapter) RefundRewards(spender core.Principal, hours, storypoints e8s.E8s) error {
	return a.humans.RefundRewards(a.callerID, spender, hours, storypoints)
}

// rewardMinterAdapter satisfies workreports.RewardMinter by fixing
// WorkReports' own service id as the caller of Humans.MintRewards.
type rewardMinterAdapter struct {
	humans   *humans.Service
	callerID string
}

func (a *rewardMinterAdapter) MintStorypoints(reporter core.Principal, storypoints e8s.E8s) error {
	return a.humans.MintRewards(a.callerID, []humans.RewardEntry{
		{Solver: reporter, RewardStorypoints: storypoints},
	})
}

// repMinterAdapter satisfies workreports.RepMinter by fixing
// WorkReports' own service id as the caller of Reputation.Mint.
type repMinterAdapter struct {
	reputation *reputation.Service
	callerID   string
	now        func() core.TimestampNs
}

func (a *repMinterAdapter) MintReputation(reporter core.Principal, qty e8s.E8s) error {
	return a.reputation.Mint(a.callerID, []reputation.MintEntry{
		{Account: reporter, Qty: qty},
	}, a.now())
}

// archiveSinkAdapter satisfies tasks.ArchiveSink: it converts evaluated
// tasks into taskarchive.ArchivedTask records, queues them, and flushes
// the queue to the Task Archive service in bounded batches on its own
// schedule (spec §4.1.2's archive pump), the way packer_loop batches
// work for its own slower downstream.
type archiveSinkAdapter struct {
	mu       sync.Mutex
	pending  []taskarchive.ArchivedTask
	archive  *taskarchive.Service
	callerID string
	now      func() core.TimestampNs
}

func (a *archiveSinkAdapter) Enqueue(t *tasks.Task, rewards []tasks.RewardEntry) {
	rewardBySolver := make(map[core.Principal]tasks.RewardEntry, len(rewards))
	for _, r := range rewards {
		rewardBySolver[r.Solver] = r
	}

	at := taskarchive.ArchivedTask{
		ID:          uint64(t.ID),
		Creator:     t.Creator,
		Title:       t.Title,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		ArchivedAt:  a.now(),
	}
	for _, sol := range t.Solutions {
		r := rewardBySolver[sol.Solver]
		at.Solutions = append(at.Solutions, taskarchive.ArchivedSolution{
			Solver:             sol.Solver,
			FilledInFields:     sol.FilledInFields,
			Rejected:           r.Rejected,
			RewardHours:        r.RewardHours,
			RewardStorypoints:  r.RewardStorypoints,
		})
	}

	a.mu.Lock()
	a.pending = append(a.pending, at)
	a.mu.Unlock()
}

// pump flushes whatever is queued to the Task Archive service, in
// ArchiveBatchSize-sized batches. On a failed batch it puts everything
// still unflushed back on the queue for the next round.
func (a *archiveSinkAdapter) pump() {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	for len(batch) > 0 {
		n := core.ArchiveBatchSize
		if n > len(batch) {
			n = len(batch)
		}
		chunk := batch[:n]
		if err := a.archive.AppendBatch(a.callerID, chunk); err != nil {
			log.Error("archive pump failed, retrying next round", "err", err, "left", len(batch))
			a.mu.Lock()
			a.pending = append(batch, a.pending...)
			a.mu.Unlock()
			return
		}
		batch = batch[n:]
	}
}

// votingsDispatcherAdapter satisfies votings.Dispatcher by routing a
// resolved voting's CallToExecute into the in-process Tasks service.
// Args travels as interface{} inside one process, so the
// FinishEditTask case needs no decoding; EvaluateTask's payload is an
// anonymous struct local to the votings package, so it is round-tripped
// through JSON into an equivalent local shape instead.
type votingsDispatcherAdapter struct {
	tasks    *tasks.Service
	callerID string
	now      func() core.TimestampNs
}

type evaluateTaskDispatchArgs struct {
	TaskID uint64
	Scores []struct {
		Solver core.Principal
		Score  *e8s.E8s
	}
}

func (d *votingsDispatcherAdapter) Dispatch(call votings.CallToExecute) error {
	if call.ServiceID != "tasks" {
		return fmt.Errorf("votingsDispatcherAdapter: unknown dispatch target %q", call.ServiceID)
	}

	switch call.Method {
	case "FinishEditTask":
		taskID, ok := call.Args.(uint64)
		if !ok {
			return fmt.Errorf("votingsDispatcherAdapter: malformed FinishEditTask args")
		}
		id := tasks.TaskID(taskID)

		current := d.tasks.GetTasksByID([]tasks.TaskID{id})
		if len(current) == 0 {
			return fmt.Errorf("votingsDispatcherAdapter: task %d no longer exists", id)
		}
		return d.tasks.FinishEditTask(d.callerID, id, current[0].StorypointsExtBudget, d.now())

	case "EvaluateTask":
		raw, err := json.Marshal(call.Args)
		if err != nil {
			return err
		}
		var args evaluateTaskDispatchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("votingsDispatcherAdapter: malformed EvaluateTask args: %w", err)
		}

		evaluations := make([]tasks.Evaluation, len(args.Scores))
		for i, s := range args.Scores {
			evaluations[i] = tasks.Evaluation{Solver: s.Solver, Score: s.Score}
		}
		_, err = d.tasks.EvaluateTask(d.callerID, tasks.TaskID(args.TaskID), evaluations)
		return err

	default:
		return fmt.Errorf("votingsDispatcherAdapter: unknown method %q", call.Method)
	}
}
