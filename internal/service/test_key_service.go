package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// maxKeyAttempts bounds collision retries when minting a key.
const maxKeyAttempts = 10

// TestKeyService issues, binds and revokes test keys.
type TestKeyService struct {
	cfg    *config.Config
	keys   repository.TestKeyRepository
	tests  repository.TestRepository
	log    zerolog.Logger
	now    func() time.Time
	random func(n int) (string, error)
}

// NewTestKeyService creates a new TestKeyService.
func NewTestKeyService(cfg *config.Config, keys repository.TestKeyRepository, tests repository.TestRepository, log zerolog.Logger) *TestKeyService {
	return &TestKeyService{
		cfg:    cfg,
		keys:   keys,
		tests:  tests,
		log:    log.With().Str("component", "test_key_service").Logger(),
		now:    time.Now,
		random: randomKey,
	}
}

// randomKey returns n uppercase hex characters from crypto/rand.
func randomKey(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf))[:n], nil
}

// NormalizeKey canonicalises user-entered keys.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Generate mints one key for a test owned by adminID.
func (s *TestKeyService) Generate(ctx context.Context, testID uuid.UUID, adminID int) (*model.TestKey, error) {
	if _, err := s.ownedTest(ctx, testID, adminID); err != nil {
		return nil, err
	}
	return s.mint(ctx, testID, adminID)
}

// GenerateBatch mints count keys for one test.
func (s *TestKeyService) GenerateBatch(ctx context.Context, testID uuid.UUID, adminID, count int) ([]model.TestKey, error) {
	if count < 1 {
		count = 1
	}
	if _, err := s.ownedTest(ctx, testID, adminID); err != nil {
		return nil, err
	}

	keys := make([]model.TestKey, 0, count)
	for range count {
		k, err := s.mint(ctx, testID, adminID)
		if err != nil {
			return keys, err
		}
		keys = append(keys, *k)
	}
	s.log.Info().Str("test_id", testID.String()).Int("count", len(keys)).Msg("Test keys generated")
	return keys, nil
}

func (s *TestKeyService) ownedTest(ctx context.Context, testID uuid.UUID, adminID int) (*model.Test, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	if test.CreatedBy != adminID {
		return nil, apperr.Forbidden("test belongs to another admin")
	}
	return test, nil
}

// mint retries until a key is both absent on lookup and accepted by the
// store's unique constraint.
func (s *TestKeyService) mint(ctx context.Context, testID uuid.UUID, adminID int) (*model.TestKey, error) {
	for range maxKeyAttempts {
		key, err := s.random(s.cfg.TestKeyLength)
		if err != nil {
			return nil, fmt.Errorf("random key: %w", err)
		}

		exists, err := s.keys.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("check key: %w", err)
		}
		if exists {
			continue
		}

		k := &model.TestKey{
			Key:       key,
			TestID:    testID,
			CreatedBy: adminID,
			IsActive:  true,
			CreatedAt: s.now(),
		}
		if err := s.keys.Create(ctx, k); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return nil, fmt.Errorf("create key: %w", err)
		}
		return k, nil
	}
	return nil, fmt.Errorf("generate key: no unused key after %d attempts", maxKeyAttempts)
}

// Consume binds key to studentName. Repeating with the same name is
// idempotent and keeps the original used_at.
func (s *TestKeyService) Consume(ctx context.Context, key, studentName string) (*model.TestKey, error) {
	key = NormalizeKey(key)
	name := strings.TrimSpace(studentName)
	if name == "" {
		return nil, apperr.Validation(map[string]string{"full_name": "full_name is required"})
	}

	k, err := s.keys.Get(ctx, key)
	if err != nil {
		return nil, notFound(err, "test key not found")
	}
	if err := checkBindable(k, name); err != nil {
		return nil, err
	}

	bound, err := s.keys.Bind(ctx, key, name, s.now())
	if err == nil {
		return bound, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("bind key: %w", err)
	}

	// Lost a race with a concurrent bind or deactivation; report the winner.
	k, err = s.keys.Get(ctx, key)
	if err != nil {
		return nil, notFound(err, "test key not found")
	}
	if err := checkBindable(k, name); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("bind key %s: guard failed", key)
}

func checkBindable(k *model.TestKey, name string) error {
	if !k.IsActive {
		return apperr.Inactive("test key is no longer active")
	}
	if k.UsedBy != nil && *k.UsedBy != name {
		return apperr.Conflict("test key has already been used by another student")
	}
	return nil
}

// Deactivate revokes a key owned by adminID.
func (s *TestKeyService) Deactivate(ctx context.Context, key string, adminID int) (*model.TestKey, error) {
	k, err := s.ownedKey(ctx, key, adminID)
	if err != nil {
		return nil, err
	}
	out, err := s.keys.Deactivate(ctx, k.Key)
	if err != nil {
		return nil, notFound(err, "test key not found")
	}
	return out, nil
}

// Regenerate supersedes an unused key: a new key is minted for the same
// test, then the old one is deactivated. The old key stays usable if
// minting fails.
func (s *TestKeyService) Regenerate(ctx context.Context, key string, adminID int) (*model.TestKey, error) {
	k, err := s.ownedKey(ctx, key, adminID)
	if err != nil {
		return nil, err
	}
	if k.UsedBy != nil {
		return nil, apperr.Conflict("test key has already been used and cannot be regenerated")
	}

	replacement, err := s.mint(ctx, k.TestID, adminID)
	if err != nil {
		return nil, err
	}
	if _, err := s.keys.Deactivate(ctx, k.Key); err != nil {
		return nil, notFound(err, "test key not found")
	}
	s.log.Info().Str("old_key", k.Key).Str("new_key", replacement.Key).Msg("Test key regenerated")
	return replacement, nil
}

func (s *TestKeyService) ownedKey(ctx context.Context, key string, adminID int) (*model.TestKey, error) {
	k, err := s.keys.Get(ctx, NormalizeKey(key))
	if err != nil {
		return nil, notFound(err, "test key not found")
	}
	if k.CreatedBy != adminID {
		return nil, apperr.Forbidden("test key belongs to another admin")
	}
	return k, nil
}

// List returns every key issued by adminID with its test title.
func (s *TestKeyService) List(ctx context.Context, adminID int) ([]model.TestKeyListItem, error) {
	items, err := s.keys.ListByCreator(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	if items == nil {
		items = []model.TestKeyListItem{}
	}
	return items, nil
}
