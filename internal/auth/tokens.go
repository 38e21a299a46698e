package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bizportal/portal/internal/shared"
)

const keyPrefix = "portal:auth:"

// AccessClaims is stored under the hashed access token.
type AccessClaims struct {
	UserID   int64     `json:"uid"`
	FamilyID string    `json:"fid"`
	IssuedAt time.Time `json:"iat"`
}

// refreshRecord is stored under the hashed refresh token until it is consumed.
type refreshRecord struct {
	UserID   int64  `json:"uid"`
	FamilyID string `json:"fid"`
}

// IssuedTokens is the raw result of Issue and Rotate.
type IssuedTokens struct {
	Access   string
	Refresh  string
	FamilyID string
	UserID   int64
}

// TokenStore keeps opaque access and refresh tokens in Redis. Raw token
// values never reach Redis; keys carry an HMAC-SHA256 of the token.
type TokenStore struct {
	client     *redis.Client
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, secret string, accessTTL, refreshTTL time.Duration) *TokenStore {
	return &TokenStore{
		client:     client,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the access token lifetime.
func (s *TokenStore) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenStore) hash(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func accessKey(h string) string   { return keyPrefix + "access:" + h }
func refreshKey(h string) string  { return keyPrefix + "refresh:" + h }
func consumedKey(h string) string { return keyPrefix + "consumed:" + h }
func familyKey(fid string) string { return keyPrefix + "family:" + fid }
func userKey(userID int64) string { return keyPrefix + "user:" + strconv.FormatInt(userID, 10) }

// consumeRefresh deletes a refresh record and writes its consumed marker in
// one step, so a concurrent replay always finds one or the other.
// KEYS: refresh key, consumed key. ARGV: marker TTL in ms, family key prefix.
var consumeRefresh = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
redis.call('DEL', KEYS[1])
local fid = string.match(raw, '"fid":"([^"]*)"')
if fid and fid ~= '' then
  redis.call('SET', KEYS[2], fid, 'PX', ARGV[1])
  redis.call('SADD', ARGV[2] .. fid, KEYS[2])
end
return raw
`)

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue starts a new token family for the user.
func (s *TokenStore) Issue(ctx context.Context, userID int64) (IssuedTokens, error) {
	return s.issue(ctx, userID, uuid.NewString())
}

func (s *TokenStore) issue(ctx context.Context, userID int64, familyID string) (IssuedTokens, error) {
	access, err := randomToken()
	if err != nil {
		return IssuedTokens{}, fmt.Errorf("auth: generate access token: %w", err)
	}
	refresh, err := randomToken()
	if err != nil {
		return IssuedTokens{}, fmt.Errorf("auth: generate refresh token: %w", err)
	}
	accessJSON, err := json.Marshal(AccessClaims{UserID: userID, FamilyID: familyID, IssuedAt: s.now().UTC()})
	if err != nil {
		return IssuedTokens{}, err
	}
	refreshJSON, err := json.Marshal(refreshRecord{UserID: userID, FamilyID: familyID})
	if err != nil {
		return IssuedTokens{}, err
	}
	ak, rk := accessKey(s.hash(access)), refreshKey(s.hash(refresh))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ak, accessJSON, s.accessTTL)
		pipe.Set(ctx, rk, refreshJSON, s.refreshTTL)
		pipe.SAdd(ctx, familyKey(familyID), ak, rk)
		pipe.Expire(ctx, familyKey(familyID), s.refreshTTL)
		pipe.SAdd(ctx, userKey(userID), familyID)
		pipe.Expire(ctx, userKey(userID), s.refreshTTL)
		return nil
	})
	if err != nil {
		return IssuedTokens{}, fmt.Errorf("auth: store tokens: %w", err)
	}
	return IssuedTokens{Access: access, Refresh: refresh, FamilyID: familyID, UserID: userID}, nil
}

// Lookup resolves an access token.
func (s *TokenStore) Lookup(ctx context.Context, access string) (AccessClaims, error) {
	if access == "" {
		return AccessClaims{}, shared.ErrUnauthorized
	}
	raw, err := s.client.Get(ctx, accessKey(s.hash(access))).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return AccessClaims{}, shared.ErrUnauthorized
		}
		return AccessClaims{}, fmt.Errorf("auth: lookup access token: %w", err)
	}
	var rec AccessClaims
	if err := json.Unmarshal(raw, &rec); err != nil {
		return AccessClaims{}, fmt.Errorf("auth: decode access token: %w", err)
	}
	return rec, nil
}

// Rotate consumes a refresh token and issues a new pair within the same
// family. Presenting a consumed token revokes the family and returns
// shared.ErrTokenReused.
func (s *TokenStore) Rotate(ctx context.Context, refresh string) (IssuedTokens, error) {
	if refresh == "" {
		return IssuedTokens{}, shared.ErrUnauthorized
	}
	h := s.hash(refresh)
	ttl := strconv.FormatInt(s.refreshTTL.Milliseconds(), 10)
	raw, err := consumeRefresh.Run(ctx, s.client, []string{refreshKey(h), consumedKey(h)}, ttl, familyKey("")).Text()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return IssuedTokens{}, fmt.Errorf("auth: consume refresh token: %w", err)
		}
		familyID, cerr := s.client.Get(ctx, consumedKey(h)).Result()
		if cerr != nil {
			if errors.Is(cerr, redis.Nil) {
				return IssuedTokens{}, shared.ErrUnauthorized
			}
			return IssuedTokens{}, fmt.Errorf("auth: check consumed token: %w", cerr)
		}
		if err := s.RevokeFamily(ctx, familyID); err != nil {
			return IssuedTokens{}, err
		}
		return IssuedTokens{FamilyID: familyID}, shared.ErrTokenReused
	}
	var rec refreshRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return IssuedTokens{}, fmt.Errorf("auth: decode refresh token: %w", err)
	}
	return s.issue(ctx, rec.UserID, rec.FamilyID)
}

// FamilyOf returns the family id of a live or consumed refresh token.
func (s *TokenStore) FamilyOf(ctx context.Context, refresh string) (string, error) {
	h := s.hash(refresh)
	raw, err := s.client.Get(ctx, refreshKey(h)).Bytes()
	if err == nil {
		var rec refreshRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return "", err
		}
		return rec.FamilyID, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", err
	}
	fid, err := s.client.Get(ctx, consumedKey(h)).Result()
	if errors.Is(err, redis.Nil) {
		return "", shared.ErrUnauthorized
	}
	return fid, err
}

// RevokeFamily deletes every token issued in the family.
func (s *TokenStore) RevokeFamily(ctx context.Context, familyID string) error {
	if familyID == "" {
		return nil
	}
	keys, err := s.client.SMembers(ctx, familyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("auth: load token family: %w", err)
	}
	keys = append(keys, familyKey(familyID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("auth: revoke token family: %w", err)
	}
	return nil
}

// RevokeUser revokes every family of the user except keepFamily.
func (s *TokenStore) RevokeUser(ctx context.Context, userID int64, keepFamily string) error {
	families, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("auth: load user families: %w", err)
	}
	for _, fid := range families {
		if fid == keepFamily {
			continue
		}
		if err := s.RevokeFamily(ctx, fid); err != nil {
			return err
		}
		if err := s.client.SRem(ctx, userKey(userID), fid).Err(); err != nil {
			return err
		}
	}
	return nil
}
