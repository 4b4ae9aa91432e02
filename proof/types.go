package proof

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
	"github.com/fort-major/dao/svcerr"
)

// Markers embedded in proof responses (spec §6); consumers must
// string-compare, not infer from shape.
const (
	MarkerProfile         = "FMJ HUMANS CANISTER GET PROFILE PROOFS RESPONSE"
	MarkerReputation      = "FMJ REPUTATION CANISTER GET REPUTATION PROOF RESPONSE"
	MarkerLiquidDemocracy = "FMJ LIQUID DEMOCRACY CANISTER GET PROOF RESPONSE"
)

// ProfileProof is the certified reply of Humans.GetProfileProofs (spec §4.4).
type ProfileProof struct {
	Marker               string         `cbor:"marker"`
	ID                    core.Principal `cbor:"id"`
	IsTeamMember          bool           `cbor:"is_team_member"`
	Reputation            e8s.E8s        `cbor:"reputation"`
	ReputationTotalSupply e8s.E8s        `cbor:"reputation_total_supply"`
}

// AssertValidFor checks the marker and identity binding (spec §4.9
// assert_valid_for); freshness and signature are already checked by
// VerifyAndDecode.
func (p *ProfileProof) AssertValidFor(caller core.Principal) error {
	if p.Marker != MarkerProfile {
		return svcerr.Prooff("profile proof: unexpected marker %q", p.Marker)
	}
	if p.ID != caller {
		return svcerr.Prooff("profile proof: id mismatch, proof is for a different caller")
	}
	return nil
}

// DelegationNode is one node of a reputation_delegation_tree (spec §4.8):
// a principal's reputation share, gated by a topic predicate, together
// with its own delegators one level deeper.
type DelegationNode struct {
	Principal  core.Principal    `cbor:"principal"`
	Reputation e8s.E8s           `cbor:"reputation"`
	TopicSet   TopicSetWire      `cbor:"topic_set"`
	Delegators []*DelegationNode `cbor:"delegators"`
}

// TopicSetWire is the CBOR-friendly encoding of a liquiddemocracy
// TopicSet boolean tree; proof consumers only need to evaluate it, not
// construct one, so it is represented here as an opaque encoded blob
// decoded lazily by whichever package owns TopicSet semantics
// (liquiddemocracy), avoiding an import cycle.
type TopicSetWire []byte

// ReputationProof is the certified reply of Reputation.GetRepProof
// (spec §4.3).
type ReputationProof struct {
	Marker                string                          `cbor:"marker"`
	ID                     core.Principal                 `cbor:"id"`
	Reputation             e8s.E8s                         `cbor:"reputation"`
	ReputationTotalSupply  e8s.E8s                         `cbor:"reputation_total_supply"`
	Followers              map[core.Principal]FollowerInfo `cbor:"followers"`
	DelegationTree         *DelegationNode                 `cbor:"delegation_tree"`
}

// FollowerInfo is the per-follower payload embedded in a ReputationProof.
type FollowerInfo struct {
	Balance  e8s.E8s      `cbor:"balance"`
	TopicSet TopicSetWire `cbor:"topic_set"`
}

func (p *ReputationProof) AssertValidFor(caller core.Principal) error {
	if p.Marker != MarkerReputation {
		return svcerr.Prooff("reputation proof: unexpected marker %q", p.Marker)
	}
	if p.ID != caller {
		return svcerr.Prooff("reputation proof: id mismatch, proof is for a different caller")
	}
	return nil
}

// LiquidDemocracyProof is the certified reply of the liquid-democracy
// service's follower-resolution endpoint (spec §4.6/§4.9).
type LiquidDemocracyProof struct {
	Marker    string                      `cbor:"marker"`
	ID        core.Principal              `cbor:"id"`
	Followers map[core.Principal][]byte   `cbor:"followers"` // principal -> encoded TopicSet
}

func (p *LiquidDemocracyProof) AssertValidFor(caller core.Principal) error {
	if p.Marker != MarkerLiquidDemocracy {
		return svcerr.Prooff("liquid democracy proof: unexpected marker %q", p.Marker)
	}
	if p.ID != caller {
		return svcerr.Prooff("liquid democracy proof: id mismatch, proof is for a different caller")
	}
	return nil
}

// DecodeProfileProof is the decode func to pass to VerifyAndDecode.
func DecodeProfileProof(b []byte) (*ProfileProof, error) {
	var p ProfileProof
	if err := cbor.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeReputationProof is the decode func to pass to VerifyAndDecode.
func DecodeReputationProof(b []byte) (*ReputationProof, error) {
	var p ReputationProof
	if err := cbor.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeLiquidDemocracyProof is the decode func to pass to VerifyAndDecode.
func DecodeLiquidDemocracyProof(b []byte) (*LiquidDemocracyProof, error) {
	var p LiquidDemocracyProof
	if err := cbor.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
