package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/nutrivida/api/internal/models"
)

// TokenName tags issued credentials, mirroring the platform's token label.
const TokenName = "auth_token"

// TokenType is the scheme reported alongside issued credentials.
const TokenType = "Bearer"

const secretBytes = 20

// TokenService issues, resolves, and revokes opaque bearer tokens. Issuing
// revokes every prior token for the identity inside one transaction, so at
// most one valid token exists per identity at any time. Issuance is never
// part of the provisioning transaction; it runs post-commit.
type TokenService struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewTokenService builds a token service over the given database handle.
func NewTokenService(db *bun.DB, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{db: db, logger: logger}
}

// Issue revokes all tokens for the identity and creates exactly one new one.
// The returned plaintext has the shape "<id>|<secret>"; only the SHA-256
// digest of the secret is persisted.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token secret")
	}
	secret := hex.EncodeToString(buf)

	record := &models.AccessToken{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        TokenName,
		TokenDigest: digest(secret),
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*models.AccessToken)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx); err != nil {
			return err
		}

		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue access token")
	}

	return record.ID.String() + "|" + secret, nil
}

// Resolve returns the token record matching an opaque bearer value, updating
// its last-used timestamp. Missing, malformed, and unknown tokens all resolve
// to the same generic authentication error.
func (s *TokenService) Resolve(ctx context.Context, bearer string) (*models.AccessToken, error) {
	id, secret, ok := splitBearer(bearer)
	if !ok {
		return nil, Unauthenticated()
	}

	record := &models.AccessToken{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, Unauthenticated()
	}

	if subtle.ConstantTimeCompare([]byte(record.TokenDigest), []byte(digest(secret))) != 1 {
		return nil, Unauthenticated()
	}

	now := time.Now()
	if _, err := s.db.NewUpdate().
		Model((*models.AccessToken)(nil)).
		Set("last_used_at = ?", now).
		Where("id = ?", record.ID).
		Exec(ctx); err != nil {
		s.logger.Warn("failed to track token usage", zap.Error(err))
	}
	record.LastUsedAt = &now

	return record, nil
}

// Revoke deletes only the given token. Used by logout, which invalidates the
// credential presented on the current request and nothing else.
func (s *TokenService) Revoke(ctx context.Context, tokenID uuid.UUID) error {
	res, err := s.db.NewDelete().
		Model((*models.AccessToken)(nil)).
		Where("id = ?", tokenID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke access token")
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Unauthenticated()
	}

	return nil
}

func digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func splitBearer(bearer string) (uuid.UUID, string, bool) {
	parts := strings.SplitN(strings.TrimSpace(bearer), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return uuid.Nil, "", false
	}

	id, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", false
	}

	return id, parts[1], true
}
