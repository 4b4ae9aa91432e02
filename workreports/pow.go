package workreports

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/liquiddemocracy"
)

var (
	powStart     = []byte("FMJ WORK REPORT POW START")
	powEnd       = []byte("FMJ WORK REPORT POW END")
	powDelimiter = []byte{0x00}

	// powComplexity bounds the leading byte of a valid proof-of-work
	// hash: the hash's prefix (of the same length) must compare
	// lexicographically <= powComplexity (spec §4.8).
	powComplexity = []byte{0x0f}
)

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// powHash reproduces the server-side recomputation of the
// proof-of-work digest from the submitted fields (spec §4.8):
//
//	SHA-256(POW_START || target_service_id || DELIM || caller || DELIM
//	        || topic_le || DELIM || title || DELIM || goal || DELIM
//	        || description || DELIM || result || DELIM || want_rep_byte
//	        || DELIM || nonce_le || POW_END)
func powHash(targetServiceID core.Principal, caller core.Principal, topic liquiddemocracy.DecisionTopicID, title, goal, description, result string, wantRep bool, nonce uint64) [32]byte {
	h := sha256.New()
	h.Write(powStart)
	h.Write(targetServiceID[:])
	h.Write(powDelimiter)
	h.Write(caller[:])
	h.Write(powDelimiter)

	var topicLE [4]byte
	binary.LittleEndian.PutUint32(topicLE[:], uint32(topic))
	h.Write(topicLE[:])
	h.Write(powDelimiter)

	h.Write([]byte(title))
	h.Write(powDelimiter)
	h.Write([]byte(goal))
	h.Write(powDelimiter)
	h.Write([]byte(description))
	h.Write(powDelimiter)
	h.Write([]byte(result))
	h.Write(powDelimiter)

	h.Write([]byte{boolByte(wantRep)})
	h.Write(powDelimiter)

	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], nonce)
	h.Write(nonceLE[:])

	h.Write(powEnd)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// verifyPow recomputes the digest from the submitted fields and checks
// both that it meets the complexity target and that it matches the
// client-submitted pow bytes exactly (spec §4.8).
func verifyPow(targetServiceID, caller core.Principal, topic liquiddemocracy.DecisionTopicID, title, goal, description, result string, wantRep bool, nonce uint64, submittedPow [32]byte) bool {
	if bytes.Compare(submittedPow[:len(powComplexity)], powComplexity) > 0 {
		return false
	}
	expected := powHash(targetServiceID, caller, topic, title, goal, description, result, wantRep, nonce)
	return bytes.Equal(expected[:], submittedPow[:])
}
