package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned for missing, expired, revoked, inactive or
	// type-mismatched tokens. Callers cannot tell these cases apart.
	ErrNotFound = errors.New("token not found")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("token ledger unavailable")
)

const (
	defaultPrefix         = "tl"
	defaultRetentionGrace = 24 * time.Hour
	systemActor           = "system"
)

// Options configures a [Store].
type Options struct {
	// Prefix namespaces every key. Defaults to "tl".
	Prefix string
	// RetentionGrace keeps records past expiry so replays can be recognized.
	RetentionGrace time.Duration
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Store is the Redis token ledger.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewStore creates a ledger backed by rdb.
func NewStore(rdb redis.UniversalClient, opts Options) *Store {
	s := &Store{
		redis:  rdb,
		prefix: opts.Prefix,
		grace:  opts.RetentionGrace,
		now:    opts.Clock,
	}
	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.grace <= 0 {
		s.grace = defaultRetentionGrace
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) recordPrefix() string { return s.prefix + ":t:" }
func (s *Store) recordKey(hash string) string { return s.recordPrefix() + hash }
func (s *Store) sessionKey(identityID string) string {
	return s.prefix + ":s:" + identityID
}
func (s *Store) indexKey(identityID string) string {
	return s.prefix + ":i:" + identityID
}
func (s *Store) blacklistKey(hash string) string {
	return s.prefix + ":b:" + hash
}

// Issue describes a token to persist.
type Issue struct {
	Type       TokenType
	IdentityID string
	SessionID  string
	Token      string
	ExpiresAt  time.Time
	Device     Device
}

// Issue persists a refresh, reset or verification token.
//
//	Performance: 1 MULTI/EXEC with 3-4 commands.
func (s *Store) Issue(ctx context.Context, in Issue) (*Record, error) {
	switch in.Type {
	case TypeRefresh, TypeReset, TypeVerification:
	default:
		return nil, fmt.Errorf("ledger: cannot persist %q tokens", in.Type)
	}
	if in.Token == "" || in.IdentityID == "" {
		return nil, errors.New("ledger: token and identity are required")
	}

	now := s.now()
	remaining := in.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return nil, errors.New("ledger: token already expired")
	}

	rec := &Record{
		Hash:       HashToken(in.Token),
		Type:       in.Type,
		IdentityID: in.IdentityID,
		SessionID:  in.SessionID,
		IssuedAt:   now,
		ExpiresAt:  in.ExpiresAt,
		Active:     true,
		UserAgent:  in.Device.UserAgent,
		IP:         in.Device.IP,
		LastUsedAt: now,
	}

	key := s.recordKey(rec.Hash)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, rec.fields())
		pipe.PExpire(ctx, key, remaining+s.grace)
		pipe.ZAdd(ctx, s.indexKey(in.IdentityID), redis.Z{Score: float64(millis(in.ExpiresAt)), Member: rec.Hash})
		if in.Type == TypeRefresh {
			pipe.ZAdd(ctx, s.sessionKey(in.IdentityID), redis.Z{Score: float64(millis(now)), Member: rec.Hash})
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return rec, nil
}

// IssueRefresh persists a refresh token for one session.
func (s *Store) IssueRefresh(ctx context.Context, identityID, sessionID, token string, expiresAt time.Time, device Device) (*Record, error) {
	return s.Issue(ctx, Issue{
		Type:       TypeRefresh,
		IdentityID: identityID,
		SessionID:  sessionID,
		Token:      token,
		ExpiresAt:  expiresAt,
		Device:     device,
	})
}

// Lookup returns the stored record for token whatever its state.
func (s *Store) Lookup(ctx context.Context, token string) (*Record, error) {
	return s.get(ctx, HashToken(token))
}

// FindValid returns the record only when it is of type typ and valid now.
//
//	Performance: 1 HGETALL.
func (s *Store) FindValid(ctx context.Context, token string, typ TokenType) (*Record, error) {
	rec, err := s.get(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if rec.Type != typ || !rec.Valid(s.now()) {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Store) get(ctx context.Context, hash string) (*Record, error) {
	m, err := s.redis.HGetAll(ctx, s.recordKey(hash)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return recordFromHash(hash, m), nil
}

// RecordUse stamps last use and bumps the use count. Refresh tokens also move
// to the front of the session index.
func (s *Store) RecordUse(ctx context.Context, rec *Record) error {
	now := s.now()
	n, err := recordUseLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.Hash), s.sessionKey(rec.IdentityID)},
		millis(now), rec.Hash,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	rec.LastUsedAt = now
	rec.UseCount = n
	return nil
}

// Revoke marks rec revoked. It reports whether this call performed the
// revocation; revoking an already revoked or missing record is a no-op and
// keeps the first revocation time.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) Revoke(ctx context.Context, rec *Record, reason Reason, revokedBy string) (bool, error) {
	if revokedBy == "" {
		revokedBy = systemActor
	}
	now := s.now()
	code, err := revokeLua.Run(ctx, s.redis,
		[]string{s.recordKey(rec.Hash), s.sessionKey(rec.IdentityID)},
		millis(now), string(reason), revokedBy, rec.Hash,
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	if code != 1 {
		return false, nil
	}
	rec.Active = false
	rec.RevokedAt = &now
	rec.RevocationReason = reason
	rec.RevokedBy = revokedBy
	return true, nil
}

// RevokeSession revokes the refresh tokens of one session.
func (s *Store) RevokeSession(ctx context.Context, identityID, sessionID string, reason Reason) (int, error) {
	n, err := revokeSessionLua.Run(ctx, s.redis,
		[]string{s.sessionKey(identityID)},
		s.recordPrefix(), sessionID, millis(s.now()), string(reason), identityID,
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// RevokeAllForIdentity revokes every active persisted token of identityID in
// one atomic step.
func (s *Store) RevokeAllForIdentity(ctx context.Context, identityID string, reason Reason, revokedBy string) (int, error) {
	return s.revokeAll(ctx, identityID, "", reason, revokedBy)
}

// RevokeAllOfType revokes the active tokens of one type, for example every
// outstanding reset token before a new one is issued.
func (s *Store) RevokeAllOfType(ctx context.Context, identityID string, typ TokenType, reason Reason) (int, error) {
	return s.revokeAll(ctx, identityID, typ, reason, systemActor)
}

func (s *Store) revokeAll(ctx context.Context, identityID string, typ TokenType, reason Reason, revokedBy string) (int, error) {
	if revokedBy == "" {
		revokedBy = systemActor
	}
	n, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.indexKey(identityID), s.sessionKey(identityID)},
		s.recordPrefix(), millis(s.now()), string(reason), revokedBy, string(typ),
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// CapConcurrentSessions revokes the least recently used sessions beyond max
// and returns how many were revoked. max <= 0 disables the cap.
//
//	Performance: 1 Lua EVALSHA, O(sessions).
func (s *Store) CapConcurrentSessions(ctx context.Context, identityID string, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := capSessionsLua.Run(ctx, s.redis,
		[]string{s.sessionKey(identityID)},
		s.recordPrefix(), max, millis(s.now()), string(ReasonSessionLimit),
	).Slice()
	if err != nil {
		return 0, unavailable(err)
	}
	return len(res), nil
}

// ActiveSessions lists valid refresh records of identityID, most recently used
// first.
func (s *Store) ActiveSessions(ctx context.Context, identityID string) ([]*Record, error) {
	hashes, err := s.redis.ZRevRange(ctx, s.sessionKey(identityID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(hashes) == 0 {
		return []*Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, h := range hashes {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(h))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}

	now := s.now()
	out := make([]*Record, 0, len(hashes))
	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil {
			return nil, unavailable(err)
		}
		if len(m) == 0 {
			continue
		}
		rec := recordFromHash(hashes[i], m)
		if rec.Type == TypeRefresh && rec.Valid(now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Blacklist marks an access token revoked for the rest of its lifetime. A
// token that has already expired is not recorded.
func (s *Store) Blacklist(ctx context.Context, token, identityID string, reason Reason, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	key := s.blacklistKey(HashToken(token))
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldType, string(TypeBlacklist),
			fieldIdentity, identityID,
			fieldReason, string(reason),
			fieldRevokedAt, millis(now),
			fieldExpiresAt, millis(expiresAt),
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// IsBlacklisted reports whether token has been revoked by [Store.Blacklist].
//
//	Performance: 1 EXISTS.
func (s *Store) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(HashToken(token))).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

// SweepExpired drops index entries whose tokens expired more than the
// retention grace before now, along with their records. It returns the
// number of entries removed. Validity never depends on the sweep.
//
// This is an O(n) SCAN and must not run in request paths.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	pattern := s.prefix + ":i:*"
	cutoff := fmt.Sprintf("(%d", millis(now.Add(-s.grace)))
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return removed, unavailable(err)
		}
		for _, indexKey := range keys {
			n, err := s.sweepIndex(ctx, indexKey, cutoff)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

func (s *Store) sweepIndex(ctx context.Context, indexKey, cutoff string) (int, error) {
	stale, err := s.redis.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	identityID := strings.TrimPrefix(indexKey, s.prefix+":i:")
	members := make([]any, len(stale))
	recordKeys := make([]string, len(stale))
	for i, h := range stale {
		members[i] = h
		recordKeys[i] = s.recordKey(h)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKeys...)
		pipe.ZRem(ctx, indexKey, members...)
		pipe.ZRem(ctx, s.sessionKey(identityID), members...)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return len(stale), nil
}

// Ping checks Redis availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
