// Package redis is the only store.Store implementation: a single-writer
// Redis-backed durable store for hosts, lifecycle state, schedule, and
// counters (spec.md §4.1, §6). Grounded on the teacher's
// internal/store/redis package (Store struct wrapping *redis.Client,
// key-builder functions, TTL-keyed cache idiom for dedupe).
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fediwatch/crawler/internal/domain"
	"github.com/fediwatch/crawler/internal/store"
)

// SeenTTL bounds how long an outcome's dedupe marker is retained. Checks
// are dispatched at most a few times a day per host, so a day's TTL is
// ample to catch any plausible duplicate delivery.
const SeenTTL = 24 * time.Hour

// Store implements store.Store against a single *redis.Client.
type Store struct {
	client *redis.Client
}

// NewStore wraps an already-connected client (see internal/redis.New) and
// stamps/validates the schema version.
func NewStore(ctx context.Context, client *redis.Client) (*Store, error) {
	s := &Store{client: client}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ClaimDue implements store.Store.ClaimDue.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Host, error) {
	hostnames, err := s.client.ZRangeByScore(ctx, KeySchedule, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: claim_due: listing due schedule: %w", err)
	}
	if len(hostnames) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(hostnames))
	for _, h := range hostnames {
		cmds[h] = pipe.HGetAll(ctx, HostKey(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis store: claim_due: reading host records: %w", err)
	}

	hosts := make([]domain.Host, 0, len(hostnames))
	reschedule := s.client.TxPipeline()
	for _, h := range hostnames {
		rec := hostRecord(cmds[h].Val())
		if len(rec) == 0 {
			// Scheduled but the host hash vanished; drop it from the
			// schedule rather than return a phantom host.
			reschedule.ZRem(ctx, KeySchedule, h)
			continue
		}
		state, err := decodeState(rec)
		if err != nil {
			return nil, fmt.Errorf("redis store: claim_due: decoding %s: %w", h, err)
		}
		nextCheck := now.Add(domain.Jitter(pessimisticInterval(state.Kind()), nil))
		reschedule.ZAdd(ctx, KeySchedule, redis.Z{Score: float64(nextCheck.Unix()), Member: h})
		hosts = append(hosts, domain.Host{Hostname: h, State: state, NextCheck: nextCheck})
	}
	if _, err := reschedule.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis store: claim_due: pessimistic reschedule: %w", err)
	}

	// hosts is already in ascending due order: ZRANGEBYSCORE returned
	// hostnames sorted by schedule score, ties broken lexicographically
	// by member, and that's the order this loop preserved. Sorting here
	// by the freshly jittered NextCheck would scramble dispatch priority.
	return hosts, nil
}

// pessimisticInterval returns the largest normal interval a host in kind
// could be rescheduled to, so a claimed-but-never-completed check doesn't
// get redispatched immediately (spec.md §4.1).
func pessimisticInterval(kind domain.Kind) time.Duration {
	switch kind {
	case domain.KindDiscovered:
		return domain.IntervalDead
	case domain.KindAlive:
		return domain.IntervalAlive
	case domain.KindDying, domain.KindDead, domain.KindReviving, domain.KindMoving:
		return domain.IntervalDead
	case domain.KindMoved:
		return domain.IntervalMovedTo
	default:
		return domain.IntervalDead
	}
}

// RecordOutcome implements store.Store.RecordOutcome.
func (s *Store) RecordOutcome(ctx context.Context, host string, outcomeSeq uint64, outcome domain.Outcome, now time.Time) error {
	seenKey := SeenKey(host, outcomeSeq)
	seen, err := s.client.Exists(ctx, seenKey).Result()
	if err != nil {
		return fmt.Errorf("redis store: record_outcome: dedupe check: %w", err)
	}
	if seen > 0 {
		return nil
	}

	key := HostKey(host)
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis store: record_outcome: reading %s: %w", host, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: %s", store.ErrUnknownHost, host)
	}
	rec := hostRecord(raw)
	current, err := decodeState(rec)
	if err != nil {
		return fmt.Errorf("redis store: record_outcome: decoding %s: %w", host, err)
	}

	next, nextCheck, peers := domain.Transition(current, outcome, now, nil)

	next, nextCheck, err = s.resolveMovedCycle(ctx, host, next, nextCheck, now)
	if err != nil {
		return fmt.Errorf("redis store: record_outcome: cycle detection for %s: %w", host, err)
	}

	out := hostRecord{}
	encodeState(out, next)
	out[fieldConsecutiveFailures] = strconv.Itoa(consecutiveFailuresOf(next))
	out[fieldConsecutiveSuccesses] = strconv.Itoa(consecutiveSuccessesOf(next))

	lastAliveAt := rec[fieldLastAliveAt]
	if _, ok := outcome.(domain.OutcomeAlive); ok {
		lastAliveAt = encodeTime(now)
	}
	if lastAliveAt != "" {
		out[fieldLastAliveAt] = lastAliveAt
	}

	redirects, _ := strconv.Atoi(rec[fieldTotalRedirects])
	switch outcome.(type) {
	case domain.OutcomeMovedTemp, domain.OutcomeMovedPerm:
		redirects++
	}
	out[fieldTotalRedirects] = strconv.Itoa(redirects)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, toStringMap(out))
	// The dedupe marker commits with the write it guards, so an attempt
	// that failed and is retried with the same outcomeSeq is applied.
	pipe.Set(ctx, seenKey, 1, SeenTTL)
	pipe.ZAdd(ctx, KeySchedule, redis.Z{Score: float64(nextCheck.Unix()), Member: host})
	if isListable(next.Kind()) {
		pipe.ZAdd(ctx, KeyAliveIndex, redis.Z{Score: float64(decodeTime(lastAliveAt).Unix()), Member: host})
	} else {
		pipe.ZRem(ctx, KeyAliveIndex, host)
	}
	// Peer fold-in shares this pipe so the Alive transition and its
	// discovered peers commit atomically: a snapshot taken between
	// them can never see one without the other (spec.md §4.1, §6).
	for _, peer := range peers {
		appendInsertDiscovered(ctx, pipe, peer, now)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: record_outcome: writing %s: %w", host, err)
	}
	return nil
}

func consecutiveFailuresOf(s domain.LifecycleState) int {
	if d, ok := s.(domain.Dying); ok {
		return d.ConsecutiveFailures
	}
	return 0
}

func consecutiveSuccessesOf(s domain.LifecycleState) int {
	if r, ok := s.(domain.Reviving); ok {
		return r.ConsecutiveSuccesses
	}
	return 0
}

func isListable(k domain.Kind) bool {
	switch k {
	case domain.KindAlive, domain.KindDying, domain.KindReviving:
		return true
	default:
		return false
	}
}

// resolveMovedCycle walks a chain of Moved targets starting at next's
// target (when next is itself Moved) looking for a cycle. If the chain
// loops back on a hostname already seen, the cycle's tail is demoted to
// Dead instead of completing the move (spec.md §8's cycle-detection
// invariant; shape grounded on original_source/src/db.rs::mark_moved,
// which tracks a single moved_to pointer per instance).
func (s *Store) resolveMovedCycle(ctx context.Context, host string, next domain.LifecycleState, nextCheck time.Time, now time.Time) (domain.LifecycleState, time.Time, error) {
	moved, ok := next.(domain.Moved)
	if !ok {
		return next, nextCheck, nil
	}

	visited := map[string]bool{host: true}
	cursor := moved.Target
	for hop := 0; hop < domain.MaxMovedChainHops; hop++ {
		if visited[cursor] {
			return domain.Dead{DeadSince: now}, now.Add(domain.Jitter(domain.IntervalDead, nil)), nil
		}
		visited[cursor] = true

		raw, err := s.client.HGetAll(ctx, HostKey(cursor)).Result()
		if err != nil {
			return next, nextCheck, fmt.Errorf("reading chain target %s: %w", cursor, err)
		}
		if len(raw) == 0 || domain.Kind(raw[fieldKind]) != domain.KindMoved {
			return next, nextCheck, nil
		}
		cursor = raw[fieldMovedTarget]
	}
	// Chain exceeds the hop bound without resolving or cycling; treat it
	// as suspicious and demote rather than follow it indefinitely.
	return domain.Dead{DeadSince: now}, now.Add(domain.Jitter(domain.IntervalDead, nil)), nil
}

// InsertDiscovered implements store.Store.InsertDiscovered.
func (s *Store) InsertDiscovered(ctx context.Context, hostname string, now time.Time) error {
	key := HostKey(hostname)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis store: insert_discovered: checking %s: %w", hostname, err)
	}
	if exists > 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	appendInsertDiscovered(ctx, pipe, hostname, now)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store: insert_discovered: writing %s: %w", hostname, err)
	}
	return nil
}

// appendInsertDiscovered appends the writes that bring hostname into
// existence as a freshly Discovered host onto pipe. Every op is
// NX-guarded, so it is safe to call unconditionally on a hostname that
// already exists — an existing record's fields are left untouched,
// which is what lets RecordOutcome fold peer insertion directly into
// its own transaction without a separate existence check per peer.
func appendInsertDiscovered(ctx context.Context, pipe redis.Pipeliner, hostname string, now time.Time) {
	key := HostKey(hostname)
	nextCheck := domain.RandomWithin(now, domain.PeerDiscoveryWindow, nil)
	pipe.HSetNX(ctx, key, fieldKind, string(domain.KindDiscovered))
	pipe.HSetNX(ctx, key, fieldDiscoveredSince, encodeTime(now))
	pipe.ZAddNX(ctx, KeySchedule, redis.Z{Score: float64(nextCheck.Unix()), Member: hostname})
}

// SnapshotAlive implements store.Store.SnapshotAlive.
func (s *Store) SnapshotAlive(ctx context.Context, aliveWindow time.Duration, now time.Time) ([]string, error) {
	cutoff := now.Add(-aliveWindow)
	hostnames, err := s.client.ZRangeByScore(ctx, KeyAliveIndex, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: snapshot_alive: %w", err)
	}
	sort.Strings(hostnames)
	return hostnames, nil
}

// AllHostnames implements store.Store.AllHostnames, used to periodically
// rebuild the Orchestrator's Bloom filter (spec.md §9).
func (s *Store) AllHostnames(ctx context.Context) ([]string, error) {
	var hostnames []string
	iter := s.client.Scan(ctx, 0, KeyPrefixHost+"*", 0).Iterator()
	for iter.Next(ctx) {
		hostnames = append(hostnames, iter.Val()[len(KeyPrefixHost):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis store: all_hostnames: %w", err)
	}
	return hostnames, nil
}
