package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCall  = "tokenledger/call/v1"
	DomainEvent = "tokenledger/event/v1"
	DomainState = "tokenledger/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CallID computes the content-addressed ID of a call record. Outcome is
// excluded: the ID names what was asked, not what happened.
func CallID(flowToken, op, caller string, args map[string]string, seq, timestamp int64) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"flow_token": flowToken,
		"op":         op,
		"caller":     caller,
		"args":       args,
		"seq":        seq,
		"timestamp":  timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("CallID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCall, canonical), nil
}

// EventID computes the content-addressed ID of an event. (seq, index) makes
// it unique within the log.
func EventID(flowToken, kind string, fields map[string]any, seq int64, index int) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"flow_token": flowToken,
		"kind":       kind,
		"fields":     fields,
		"seq":        seq,
		"index":      index,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// StateDigest hashes a canonical state snapshot.
func StateDigest(snapshot map[string]any) (string, error) {
	canonical, err := MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("StateDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}
