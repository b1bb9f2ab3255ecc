package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys. The version suffix allows the
// algorithm to change without colliding with old keys.
const (
	DomainEvent  = "bizflow/event/v1"
	DomainEffect = "bizflow/effect/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventFingerprint identifies an event by content. Two emits of the same
// type, tenant and data share a fingerprint.
func EventFingerprint(ev TriggerEvent) (string, error) {
	payload := Object{
		"type":      String(ev.Type),
		"tenant_id": String(ev.TenantID),
		"data":      ev.Data.Clone(),
	}
	b, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("EventFingerprint: %w", err)
	}
	return hashWithDomain(DomainEvent, b), nil
}

// EffectKey derives the idempotency key of one action's external effect for
// one event. Downstream deliverers use it to drop duplicate sends when the
// same event is emitted twice.
func EffectKey(eventFingerprint, ruleID, actionID string) string {
	b, _ := MarshalCanonical(Object{
		"event":     String(eventFingerprint),
		"rule_id":   String(ruleID),
		"action_id": String(actionID),
	})
	return hashWithDomain(DomainEffect, b)
}
