// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package coordination implements the CoordinationBus: HMAC-signed,
// idempotent signal acknowledgment between coordinators sharing a
// MemoryStore, with a polling wait_for_acks and a monotonic per-coordinator
// iteration counter.
//
// The idempotency-check-before-mutate pattern and the graceful behavior on a
// missing or malformed record are the same shape as the branch kill switch
// in internal/mergequeue/kill_switch.go: look the record up first, return
// the existing one unchanged if already present, only write once. HMAC
// signing itself has no third-party home anywhere in this module's
// dependency set — it is computed with the standard library's crypto/hmac
// and crypto/sha256, the one ambient-crypto concern carried on stdlib
// rather than a dependency.
package coordination

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"cfnloop/internal/memory"
	"cfnloop/pkg/cfntypes"
)

// idPattern constrains coordinator IDs and signal IDs to prevent
// namespace/key injection into the MemoryStore's flat key layout.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultAckTTL is the default TTL-bounded persistence window for a
// SignalAck record.
const DefaultAckTTL = 1 * time.Hour

// DefaultPollInterval is the wait_for_acks polling interval.
const DefaultPollInterval = 100 * time.Millisecond

// Bus implements the Signal ACK protocol over a MemoryStore. One Bus is
// constructed per coordinating process; the shared secret must match across
// every cooperating coordinator for signatures to verify.
type Bus struct {
	store  memory.Store
	secret []byte

	mu         sync.Mutex
	iterations map[string]int64                  // coordinatorID -> iteration
	processed  map[string]cfntypes.SignalAck // coordinatorID+":"+signalID -> ack, seen this process lifetime
}

// New constructs a Bus. A nil or empty secret is a fatal ConfigurationError:
// distributed coordination requires a shared secret among cooperating
// coordinators, with no legacy unsigned fallback.
func New(store memory.Store, secret []byte) (*Bus, error) {
	if len(secret) == 0 {
		return nil, &cfntypes.ConfigurationError{
			Component: "CoordinationBus",
			Reason:    "BLOCKING_COORDINATION_SECRET is required and was empty",
		}
	}
	return &Bus{
		store:      store,
		secret:     secret,
		iterations: make(map[string]int64),
		processed:  make(map[string]cfntypes.SignalAck),
	}, nil
}

func signalKey(signalID string) string {
	return fmt.Sprintf("cfn/signals/%s", signalID)
}

func ackKey(coordinatorID, signalID string) string {
	return fmt.Sprintf("cfn/acks/%s/%s", coordinatorID, signalID)
}

func validateID(kind, id string) error {
	if !idPattern.MatchString(id) {
		return &cfntypes.ConfigurationError{
			Component: "CoordinationBus",
			Reason:    fmt.Sprintf("%s %q does not match ^[A-Za-z0-9_-]+$", kind, id),
		}
	}
	return nil
}

// Publish atomically records a signal's payload in the MemoryStore.
func (b *Bus) Publish(ctx context.Context, sig cfntypes.Signal) error {
	if err := validateID("signal_id", sig.SignalID); err != nil {
		return err
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("coordination: marshal signal: %w", err)
	}
	return b.store.Put(ctx, signalKey(sig.SignalID), payload, DefaultAckTTL)
}

func (b *Bus) sign(coordinatorID, signalID string, timestamp, iteration int64) string {
	canonical := fmt.Sprintf("%s:%s:%d:%d", coordinatorID, signalID, timestamp, iteration)
	mac := hmac.New(sha256.New, b.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Acknowledge produces a signed ACK for signalID from coordinatorID and
// persists it with TTL. It MUST be called before a coordinator processes a
// signal. Idempotent per (coordinatorID, signalID): a repeated call returns
// the already-recorded ACK rather than minting a new one.
func (b *Bus) Acknowledge(ctx context.Context, coordinatorID, signalID string) (cfntypes.SignalAck, error) {
	if err := validateID("coordinator_id", coordinatorID); err != nil {
		return cfntypes.SignalAck{}, err
	}
	if err := validateID("signal_id", signalID); err != nil {
		return cfntypes.SignalAck{}, err
	}

	key := coordinatorID + ":" + signalID

	// Fast path: already processed earlier in this process's lifetime.
	b.mu.Lock()
	cached, ok := b.processed[key]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	// Slow path: recover idempotency across restarts by reading the
	// existing ACK record, if the store still has one.
	if existing, err := b.GetAck(ctx, coordinatorID, signalID); err == nil {
		b.markProcessed(key, existing)
		return existing, nil
	}

	b.mu.Lock()
	iteration := b.iterations[coordinatorID]
	b.mu.Unlock()

	timestamp := time.Now().Unix()
	ack := cfntypes.SignalAck{
		CoordinatorID: coordinatorID,
		SignalID:      signalID,
		Timestamp:     timestamp,
		Iteration:     iteration,
		Status:        cfntypes.AckStatusReceived,
		Signature:     b.sign(coordinatorID, signalID, timestamp, iteration),
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		return cfntypes.SignalAck{}, fmt.Errorf("coordination: marshal ack: %w", err)
	}
	if err := b.store.Put(ctx, ackKey(coordinatorID, signalID), payload, DefaultAckTTL); err != nil {
		return cfntypes.SignalAck{}, fmt.Errorf("coordination: persist ack: %w", err)
	}
	b.markProcessed(key, ack)
	return ack, nil
}

func (b *Bus) markProcessed(key string, ack cfntypes.SignalAck) {
	b.mu.Lock()
	b.processed[key] = ack
	b.mu.Unlock()
}

// GetAck retrieves and verifies the ACK for (coordinatorID, signalID). A
// signature mismatch or a missing signature field returns
// *cfntypes.SignatureMismatchError and the record is not trusted — there is
// no legacy unsigned fallback.
func (b *Bus) GetAck(ctx context.Context, coordinatorID, signalID string) (cfntypes.SignalAck, error) {
	raw, err := b.store.Get(ctx, ackKey(coordinatorID, signalID))
	if err != nil {
		return cfntypes.SignalAck{}, err
	}

	var ack cfntypes.SignalAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return cfntypes.SignalAck{}, fmt.Errorf("coordination: unmarshal ack: %w", err)
	}

	if ack.Signature == "" {
		return cfntypes.SignalAck{}, &cfntypes.SignatureMismatchError{SignalID: signalID, CoordinatorID: coordinatorID}
	}

	expected := b.sign(ack.CoordinatorID, ack.SignalID, ack.Timestamp, ack.Iteration)
	if !hmac.Equal([]byte(expected), []byte(ack.Signature)) {
		return cfntypes.SignalAck{}, &cfntypes.SignatureMismatchError{SignalID: signalID, CoordinatorID: coordinatorID}
	}
	return ack, nil
}

// WaitForAcks polls at DefaultPollInterval until every coordinatorID in
// coordinatorIDs has acknowledged signalID or timeout elapses. Coordinators
// that never ack within timeout are absent from the returned map.
func (b *Bus) WaitForAcks(ctx context.Context, coordinatorIDs []string, signalID string, timeout time.Duration) map[string]cfntypes.SignalAck {
	deadline := time.Now().Add(timeout)
	result := make(map[string]cfntypes.SignalAck)
	pending := make(map[string]bool, len(coordinatorIDs))
	for _, id := range coordinatorIDs {
		pending[id] = true
	}

	for len(pending) > 0 && time.Now().Before(deadline) {
		for id := range pending {
			ack, err := b.GetAck(ctx, id, signalID)
			if err == nil {
				result[id] = ack
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return result
		case <-time.After(DefaultPollInterval):
		}
	}
	return result
}

// IncrementIteration bumps and returns coordinatorID's monotonic iteration
// counter, embedded in every ACK it subsequently mints.
func (b *Bus) IncrementIteration(coordinatorID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.iterations[coordinatorID]++
	return b.iterations[coordinatorID]
}

// CurrentIteration returns coordinatorID's current iteration counter without
// mutating it.
func (b *Bus) CurrentIteration(coordinatorID string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.iterations[coordinatorID]
}

// ResetIteration zeroes coordinatorID's iteration counter, used when a
// sprint re-enters Loop 3 with a fresh iteration budget.
func (b *Bus) ResetIteration(coordinatorID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.iterations[coordinatorID] = 0
}
