package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
	"linknote-server/internal/ratelimit"
	"linknote-server/internal/repository"
	"linknote-server/pkg/hash"
	"linknote-server/pkg/jwt"
)

const (
	DefaultUnlockTTL   = time.Hour
	DefaultLookupDelay = 50 * time.Millisecond
)

type GateConfig struct {
	Secret      string
	UnlockTTL   time.Duration
	LookupDelay time.Duration
}

type UnlockResult struct {
	Token     string
	ExpiresAt time.Time
}

// GateService answers public lookups and runs the password unlock protocol.
// Every lookup and unlock waits LookupDelay first, found or not, so response
// time says nothing about which keys exist.
type GateService struct {
	repo    repository.RecordRepository
	limiter *ratelimit.Limiter
	cfg     GateConfig
	logger  logging.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)

	dummyOnce sync.Once
	dummyHash string
}

func NewGateService(repo repository.RecordRepository, limiter *ratelimit.Limiter, cfg GateConfig, logger logging.Logger) *GateService {
	if cfg.UnlockTTL <= 0 {
		cfg.UnlockTTL = DefaultUnlockTTL
	}
	if cfg.LookupDelay < 0 {
		cfg.LookupDelay = 0
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &GateService{
		repo:    repo,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *GateService) UnlockTTL() time.Duration {
	return s.cfg.UnlockTTL
}

// Lookup returns the record stored under key or ErrRecordNotFound.
func (s *GateService) Lookup(ctx context.Context, key string) (*domain.Record, error) {
	s.sleep(ctx, s.cfg.LookupDelay)
	return s.find(ctx, key)
}

func (s *GateService) find(ctx context.Context, key string) (*domain.Record, error) {
	if !domain.IsValidKey(key) || domain.IsSystemKey(key) {
		return nil, ErrRecordNotFound
	}

	record, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

// IsUnlocked reports whether token is a live unlock credential for key.
func (s *GateService) IsUnlocked(token, key string) bool {
	if token == "" {
		return false
	}
	_, err := jwt.ValidateUnlockToken(token, key, s.cfg.Secret, s.now())
	return err == nil
}

// CanView reports whether record may be shown to a holder of token.
func (s *GateService) CanView(record *domain.Record, token, key string) bool {
	return !record.IsProtected() || s.IsUnlocked(token, key)
}

func (s *GateService) IssueUnlock(key string) (*UnlockResult, error) {
	now := s.now()
	token, err := jwt.GenerateUnlockToken(key, now, s.cfg.UnlockTTL, s.cfg.Secret)
	if err != nil {
		return nil, err
	}
	return &UnlockResult{Token: token, ExpiresAt: now.Add(s.cfg.UnlockTTL)}, nil
}

// Unlock checks password for key on behalf of clientID. The attempt is
// counted against the limiter before the password is verified and the count
// is cleared on success. A missing record and a wrong password produce the
// same error after the same amount of work.
func (s *GateService) Unlock(ctx context.Context, key, password, clientID string) (*UnlockResult, error) {
	s.sleep(ctx, s.cfg.LookupDelay)

	if retry, limited := s.limiter.Begin(clientID, key); limited {
		s.logger.Warn("unlock rate limited", "key", key, "client", clientID)
		return nil, &RateLimitedError{RetryAfter: retry}
	}

	record, err := s.find(ctx, key)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	var ok bool
	switch {
	case record == nil:
		hash.Verify(password, s.decoyHash())
	case !record.IsProtected():
		ok = true
	default:
		ok = hash.Verify(password, record.PasswordHash)
	}

	if !ok {
		s.logger.Info("unlock failed", "key", key, "client", clientID)
		return nil, ErrIncorrectPassword
	}

	s.limiter.Reset(clientID, key)

	result, err := s.IssueUnlock(key)
	if err != nil {
		return nil, fmt.Errorf("failed to issue unlock: %w", err)
	}
	return result, nil
}

func (s *GateService) decoyHash() string {
	s.dummyOnce.Do(func() {
		h, err := hash.Hash("decoy-password-never-matches")
		if err != nil {
			s.logger.Error("failed to build decoy hash", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
