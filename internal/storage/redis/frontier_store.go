package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// claimScript inserts the claimed state with HSETNX and bumps the domain's
// last-updated counter. It returns "" on a fresh claim and the stored state
// otherwise. KEYS: urls hash, updated key. ARGV: url, claimed state, now (ms).
const claimScript = `
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return redis.call('HGET', KEYS[1], ARGV[1])
end
local prev = tonumber(redis.call('GET', KEYS[2]) or '0')
local now = tonumber(ARGV[3])
if now <= prev then now = prev + 1 end
redis.call('SET', KEYS[2], string.format('%d', now))
return ''
`

// completeScript moves a URL to completed unless it already is. It returns
// "missing" when the domain record is gone, "completed" when the URL was
// already completed, and "ok" otherwise. ARGV: url, completed state, now (ms).
const completeScript = `
if redis.call('EXISTS', KEYS[2]) == 0 then
  return 'missing'
end
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and string.find(cur, '"status":"completed"', 1, true) then
  return 'completed'
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
local prev = tonumber(redis.call('GET', KEYS[2]) or '0')
local now = tonumber(ARGV[3])
if now <= prev then now = prev + 1 end
redis.call('SET', KEYS[2], string.format('%d', now))
return 'ok'
`

// FrontierStore keeps each domain frontier in a hash of URL to JSON state,
// plus a string key holding the last-updated time in unix milliseconds.
type FrontierStore struct {
	client client
	prefix string
	now    func() time.Time
}

// NewFrontierStore wraps a Redis client. A nil clock uses wall time.
func NewFrontierStore(c client, prefix string, clock crawler.Clock) *FrontierStore {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &FrontierStore{client: c, prefix: keyPrefix(prefix), now: now}
}

func (s *FrontierStore) urlsKey(domain string) string {
	return s.prefix + ":domain:" + domain + ":urls"
}

func (s *FrontierStore) updatedKey(domain string) string {
	return s.prefix + ":domain:" + domain + ":updated"
}

// TryClaim runs the claim script, a single atomic insert-if-absent.
func (s *FrontierStore) TryClaim(ctx context.Context, url, domain string) (crawler.ClaimResult, error) {
	state, err := json.Marshal(crawler.URLState{Status: crawler.StatusClaimed})
	if err != nil {
		return "", fmt.Errorf("marshal claim state: %w", err)
	}
	existing, err := s.client.Eval(ctx, claimScript,
		[]string{s.urlsKey(domain), s.updatedKey(domain)},
		url, string(state), s.now().UnixMilli(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("claim %s: %w", url, err)
	}
	if existing == "" {
		return crawler.ClaimAcquired, nil
	}
	var cur crawler.URLState
	if err := json.Unmarshal([]byte(existing), &cur); err != nil {
		return "", fmt.Errorf("decode state of %s: %w", url, err)
	}
	if cur.Status == crawler.StatusCompleted {
		return crawler.ClaimAlreadyCompleted, nil
	}
	return crawler.ClaimAlreadyClaimed, nil
}

// Complete stores links for url and marks it completed.
func (s *FrontierStore) Complete(ctx context.Context, url, domain string, links []string) error {
	if links == nil {
		links = []string{}
	}
	state, err := json.Marshal(crawler.URLState{Status: crawler.StatusCompleted, Links: links})
	if err != nil {
		return fmt.Errorf("marshal completed state: %w", err)
	}
	res, err := s.client.Eval(ctx, completeScript,
		[]string{s.urlsKey(domain), s.updatedKey(domain)},
		url, string(state), s.now().UnixMilli(),
	).Text()
	if err != nil {
		return fmt.Errorf("complete %s: %w", url, err)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("complete %s: %w", url, crawler.ErrDomainNotFound)
	case "completed":
		return fmt.Errorf("complete %s: %w", url, crawler.ErrAlreadyCompleted)
	default:
		return fmt.Errorf("complete %s: unexpected script result %q", url, res)
	}
}

// IsKnown reports whether url has any state in the domain hash.
func (s *FrontierStore) IsKnown(ctx context.Context, url, domain string) (bool, error) {
	known, err := s.client.HExists(ctx, s.urlsKey(domain), url).Result()
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", url, err)
	}
	return known, nil
}

// Snapshot reads the whole domain record.
func (s *FrontierStore) Snapshot(ctx context.Context, domain string) (crawler.DomainRecord, error) {
	raw, err := s.client.Get(ctx, s.updatedKey(domain)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return crawler.DomainRecord{}, fmt.Errorf("snapshot %s: %w", domain, crawler.ErrDomainNotFound)
		}
		return crawler.DomainRecord{}, fmt.Errorf("snapshot %s: %w", domain, err)
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return crawler.DomainRecord{}, fmt.Errorf("parse last updated of %s: %w", domain, err)
	}
	fields, err := s.client.HGetAll(ctx, s.urlsKey(domain)).Result()
	if err != nil {
		return crawler.DomainRecord{}, fmt.Errorf("snapshot %s: %w", domain, err)
	}
	record := crawler.DomainRecord{
		Domain:      domain,
		URLStates:   make(map[string]crawler.URLState, len(fields)),
		LastUpdated: time.UnixMilli(millis).UTC(),
	}
	for url, encoded := range fields {
		var state crawler.URLState
		if err := json.Unmarshal([]byte(encoded), &state); err != nil {
			return crawler.DomainRecord{}, fmt.Errorf("decode state of %s: %w", url, err)
		}
		record.URLStates[url] = state
	}
	return record, nil
}

// Ping checks connectivity for readiness probes.
func (s *FrontierStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *FrontierStore) Close() error {
	return s.client.Close()
}
