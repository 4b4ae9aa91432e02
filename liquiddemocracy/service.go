package liquiddemocracy

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/svcerr"
)

var log = log15.New("module", "liquiddemocracy")

// Service owns the follow graph exclusively: iFollow is the follower
// side (who I follow), myFollowers is the followee side (who follows
// me, and under which topic predicate) — mirroring the original's
// i_follow/my_followers split so each direction can be walked without
// inverting the other.
type Service struct {
	mu sync.Mutex

	topics      []DecisionTopic
	iFollow     map[core.Principal]map[core.Principal]struct{}
	myFollowers map[core.Principal]map[core.Principal]*TopicSet
}

// New builds a Service seeded with the fixed DecisionTopics catalogue.
func New() *Service {
	return &Service{
		topics:      append([]DecisionTopic(nil), DefaultTopics...),
		iFollow:     make(map[core.Principal]map[core.Principal]struct{}),
		myFollowers: make(map[core.Principal]map[core.Principal]*TopicSet),
	}
}

// Topics returns the seeded decision-topic catalogue.
func (s *Service) Topics() []DecisionTopic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DecisionTopic(nil), s.topics...)
}

// Follow adds or removes a follow edge (spec §4.6). topics == nil means
// "unfollow"; topics != nil (possibly an always-true expression) adds or
// updates the edge with that predicate.
func (s *Service) Follow(caller, followee core.Principal, topics *TopicSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if topics != nil {
		if s.iFollow[caller] == nil {
			s.iFollow[caller] = make(map[core.Principal]struct{})
		}
		s.iFollow[caller][followee] = struct{}{}

		if s.myFollowers[followee] == nil {
			s.myFollowers[followee] = make(map[core.Principal]*TopicSet)
		}
		s.myFollowers[followee][caller] = topics

		log.Info("follow edge added", "follower", caller, "followee", followee)
		return nil
	}

	if f, ok := s.iFollow[caller]; ok {
		delete(f, followee)
	}
	if f, ok := s.myFollowers[followee]; ok {
		delete(f, caller)
	}
	log.Info("follow edge removed", "follower", caller, "followee", followee)
	return nil
}

// GetFollowersOf resolves, for each requested id, the full transitive
// follower set: everyone who follows id directly or follows a follower
// of id, any number of hops deep. Traversal is cycle-safe — a principal
// already present in the result is never revisited — so it terminates
// and the result is idempotent across duplicate calls (spec §8
// invariant 5, scenario 7).
func (s *Service) GetFollowersOf(ids []core.Principal) map[core.Principal]map[core.Principal]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[core.Principal]map[core.Principal]struct{}, len(ids))
	for _, id := range ids {
		result := make(map[core.Principal]struct{})
		result[id] = struct{}{} // seed so a cycle back to the root is skipped, not re-added
		s.followersOf(id, result)
		delete(result, id)
		out[id] = result
	}
	return out
}

func (s *Service) followersOf(of core.Principal, result map[core.Principal]struct{}) {
	followers, ok := s.myFollowers[of]
	if !ok {
		return
	}
	for follower := range followers {
		if _, seen := result[follower]; seen {
			continue
		}
		result[follower] = struct{}{}
		s.followersOf(follower, result)
	}
}

// GetFollowedByMe returns who caller follows, optionally filtered to
// edges whose topic predicate matches topicIDs (supplemented query,
// SPEC_FULL.md §liquiddemocracy).
func (s *Service) GetFollowedByMe(caller core.Principal, topicIDs []DecisionTopicID) ([]core.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	followees, ok := s.iFollow[caller]
	if !ok {
		return nil, nil
	}

	out := make([]core.Principal, 0, len(followees))
	for followee := range followees {
		if topicIDs == nil {
			out = append(out, followee)
			continue
		}
		ts, ok := s.myFollowers[followee][caller]
		if ok && ts.Matches(topicIDs) {
			out = append(out, followee)
		}
	}
	return out, nil
}

// TopicSetOf returns the predicate caller's edge to followee was
// registered with, or an error if no such edge exists. Used by
// Reputation's follower-proof assembly to attach the per-edge topic
// filter to each follower entry.
func (s *Service) TopicSetOf(follower, followee core.Principal) (*TopicSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.myFollowers[followee][follower]
	if !ok {
		return nil, svcerr.Statef("no follow edge from %s to %s", follower, followee)
	}
	return ts, nil
}
