// Package liquiddemocracy implements the topic-scoped follow graph and
// cycle-safe transitive follower resolution of spec §4.6.
package liquiddemocracy

import (
	"encoding/json"
	"fmt"
)

// DecisionTopicID names one of the fixed decision topics a follow edge
// can be scoped to.
type DecisionTopicID uint32

// Seeded decision topics (spec §4.6).
const (
	TopicGovernance DecisionTopicID = iota
	TopicDevelopment
	TopicMarketing
	TopicDesign
	TopicFortMajor
	TopicMSQ
)

// DecisionTopic names and describes one topic, mirroring the original's
// seeded catalogue.
type DecisionTopic struct {
	ID          DecisionTopicID
	Name        string
	Description string
}

// DefaultTopics is the fixed seed catalogue (spec §4.6).
var DefaultTopics = []DecisionTopic{
	{TopicGovernance, "Governance", "Runtime parameters. For example, what tokens are whitelisted in MSQ, what exchange rates are we using in FMJ swaps, etc."},
	{TopicDevelopment, "Development", "Everything about the code. Probably GitHub-related."},
	{TopicMarketing, "Marketing", "Everything about public presence. Tasks of this topic are usually about making some kind of content for the public."},
	{TopicDesign, "Design", "Everything about the UX and visuals. Figma and others."},
	{TopicFortMajor, "Fort Major", "Decisions related exclusively to the Fort Major organization itself."},
	{TopicMSQ, "MSQ", "Decisions related exclusively to the MSQ project."},
}

// TopicSetKind tags a TopicSet node variant.
type TopicSetKind int

const (
	KindIt TopicSetKind = iota
	KindNot
	KindAnd
	KindOr
)

// TopicSet is a boolean expression tree over DecisionTopicIDs (spec §4.6):
// It(id) | Not(x) | And(x,y) | Or(x,y). Equality is structural.
type TopicSet struct {
	Kind TopicSetKind
	ID   DecisionTopicID // KindIt only
	X, Y *TopicSet       // KindNot uses X only; KindAnd/KindOr use both
}

// It builds a leaf matching a single topic.
func It(id DecisionTopicID) *TopicSet { return &TopicSet{Kind: KindIt, ID: id} }

// Not negates x.
func Not(x *TopicSet) *TopicSet { return &TopicSet{Kind: KindNot, X: x} }

// And combines x and y conjunctively.
func And(x, y *TopicSet) *TopicSet { return &TopicSet{Kind: KindAnd, X: x, Y: y} }

// Or combines x and y disjunctively.
func Or(x, y *TopicSet) *TopicSet { return &TopicSet{Kind: KindOr, X: x, Y: y} }

// Matches evaluates the expression against a set of topic ids present on
// the thing being tested (spec §4.6).
func (t *TopicSet) Matches(topicIDs []DecisionTopicID) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindIt:
		for _, id := range topicIDs {
			if id == t.ID {
				return true
			}
		}
		return false
	case KindNot:
		return !t.X.Matches(topicIDs)
	case KindAnd:
		return t.X.Matches(topicIDs) && t.Y.Matches(topicIDs)
	case KindOr:
		return t.X.Matches(topicIDs) || t.Y.Matches(topicIDs)
	default:
		return false
	}
}

// Equal reports structural equality between two TopicSets.
func (t *TopicSet) Equal(o *TopicSet) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindIt:
		return t.ID == o.ID
	case KindNot:
		return t.X.Equal(o.X)
	case KindAnd, KindOr:
		return t.X.Equal(o.X) && t.Y.Equal(o.Y)
	default:
		return false
	}
}

// topicSetWire is the JSON wire form of a TopicSet node: a tagged union
// ("it" | "not" | "and" | "or") matching the API layer's request/proof
// bodies (spec §6 "any faithful deterministic encoding suffices").
type topicSetWire struct {
	Kind string          `json:"kind"`
	ID   DecisionTopicID `json:"id,omitempty"`
	X    *TopicSet       `json:"x,omitempty"`
	Y    *TopicSet       `json:"y,omitempty"`
}

func (t *TopicSet) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	var w topicSetWire
	switch t.Kind {
	case KindIt:
		w = topicSetWire{Kind: "it", ID: t.ID}
	case KindNot:
		w = topicSetWire{Kind: "not", X: t.X}
	case KindAnd:
		w = topicSetWire{Kind: "and", X: t.X, Y: t.Y}
	case KindOr:
		w = topicSetWire{Kind: "or", X: t.X, Y: t.Y}
	}
	return json.Marshal(w)
}

func (t *TopicSet) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var w topicSetWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "it":
		*t = TopicSet{Kind: KindIt, ID: w.ID}
	case "not":
		*t = TopicSet{Kind: KindNot, X: w.X}
	case "and":
		*t = TopicSet{Kind: KindAnd, X: w.X, Y: w.Y}
	case "or":
		*t = TopicSet{Kind: KindOr, X: w.X, Y: w.Y}
	default:
		return fmt.Errorf("liquiddemocracy: unknown topic set kind %q", w.Kind)
	}
	return nil
}
