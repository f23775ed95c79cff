package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fallbackRevokeTTL is used when the original token no longer reports a TTL
const fallbackRevokeTTL = 7 * 24 * time.Hour

// RedisRepository handles refresh token persistence in Redis.
//
// Layout:
//
//	refresh_token:<hash>          hash {account_id, expires_at, created_at}
//	refresh_token:revoked:<hash>  revocation marker, same TTL as the token
//	account_tokens:<account_id>   set of token hashes issued to the account
type RedisRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

var _ RefreshTokenRepository = (*RedisRepository)(nil)

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client, now: time.Now}
}

func getTokenKey(tokenHash string) string {
	return fmt.Sprintf("refresh_token:%s", tokenHash)
}

func getRevokedKey(tokenHash string) string {
	return fmt.Sprintf("refresh_token:revoked:%s", tokenHash)
}

func getAccountTokensKey(accountID uuid.UUID) string {
	return fmt.Sprintf("account_tokens:%s", accountID.String())
}

// StoreRefreshToken stores a refresh token in Redis with TTL
func (r *RedisRepository) StoreRefreshToken(ctx context.Context, accountID uuid.UUID, token string, expiresAt time.Time) error {
	tokenHash := hashToken(token)
	tokenKey := getTokenKey(tokenHash)
	accountTokensKey := getAccountTokensKey(accountID)

	now := r.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("token expiration time is in the past")
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKey, map[string]any{
			"account_id": accountID.String(),
			"expires_at": expiresAt.Unix(),
			"created_at": now.Unix(),
		})
		pipe.Expire(ctx, tokenKey, ttl)

		// The set lives as long as the newest token
		pipe.SAdd(ctx, accountTokensKey, tokenHash)
		pipe.Expire(ctx, accountTokensKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

// GetRefreshToken looks a token up by its hash
func (r *RedisRepository) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	tokenHash := hashToken(token)

	revoked, err := r.client.Exists(ctx, getRevokedKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, ErrRefreshTokenRevoked
	}

	data, err := r.client.HGetAll(ctx, getTokenKey(tokenHash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrRefreshTokenNotFound
	}

	accountID, err := uuid.Parse(data["account_id"])
	if err != nil {
		return nil, ErrInvalidToken
	}

	expiresAtUnix, err := strconv.ParseInt(data["expires_at"], 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expiresAt := time.Unix(expiresAtUnix, 0)
	if r.now().After(expiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	createdAtUnix, _ := strconv.ParseInt(data["created_at"], 10, 64)

	return &RefreshToken{
		AccountID: accountID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Unix(createdAtUnix, 0),
	}, nil
}

// RevokeRefreshToken marks a refresh token as revoked
func (r *RedisRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	tokenHash := hashToken(token)
	tokenKey := getTokenKey(tokenHash)

	ttl, err := r.client.TTL(ctx, tokenKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get token TTL: %w", err)
	}
	// -2 means the key does not exist
	if ttl == -2 {
		return ErrRefreshTokenNotFound
	}
	if ttl <= 0 {
		ttl = fallbackRevokeTTL
	}

	// SetNX makes a second revocation of the same token observable
	ok, err := r.client.SetNX(ctx, getRevokedKey(tokenHash), "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !ok {
		return ErrRefreshTokenRevoked
	}

	return nil
}

// RevokeAllAccountTokens revokes every refresh token issued to an account
func (r *RedisRepository) RevokeAllAccountTokens(ctx context.Context, accountID uuid.UUID) error {
	tokenHashes, err := r.client.SMembers(ctx, getAccountTokensKey(accountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get account tokens: %w", err)
	}
	if len(tokenHashes) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, tokenHash := range tokenHashes {
		ttl, _ := r.client.TTL(ctx, getTokenKey(tokenHash)).Result()
		if ttl <= 0 {
			ttl = fallbackRevokeTTL
		}
		pipe.Set(ctx, getRevokedKey(tokenHash), "1", ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke account tokens: %w", err)
	}

	return nil
}
