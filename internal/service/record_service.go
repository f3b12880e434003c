package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
	"linknote-server/internal/repository"
	"linknote-server/pkg/hash"
)

// ChangeNotifier receives an event after records were written.
type ChangeNotifier interface {
	RecordsChanged(event domain.ChangeEvent)
}

// RecordService administers single records, as the note editor and
// quick-add form do.
type RecordService struct {
	repo     repository.RecordRepository
	validate *validator.Validate
	notifier ChangeNotifier
	logger   logging.Logger
}

func NewRecordService(repo repository.RecordRepository, notifier ChangeNotifier, logger logging.Logger) *RecordService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RecordService{
		repo:     repo,
		validate: NewValidator(),
		notifier: notifier,
		logger:   logger,
	}
}

func (s *RecordService) Get(ctx context.Context, key string) (*domain.RecordResponse, error) {
	if domain.IsSystemKey(key) || !domain.IsValidKey(key) {
		return nil, ErrRecordNotFound
	}

	record, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return domain.NewRecordResponse(key, record), nil
}

func (s *RecordService) List(ctx context.Context) ([]*domain.RecordResponse, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]*domain.RecordResponse, 0, len(records))
	for key, r := range records {
		responses = append(responses, domain.NewRecordResponse(key, r))
	}
	sort.Slice(responses, func(i, j int) bool { return responses[i].Key < responses[j].Key })

	return responses, nil
}

// Save creates or replaces key. An existing password hash and creation time
// are carried over unless the request sets a new password or removes it.
// The bulk placeholder password means the same as no password.
func (s *RecordService) Save(ctx context.Context, actor, key string, req *domain.SaveRecordRequest) (*domain.RecordResponse, error) {
	record := &domain.Record{Type: req.Type, Content: req.Content}

	if msgs := validateRecord(s.validate, key, record); len(msgs) > 0 {
		return nil, &ValidationError{Messages: msgs}
	}

	existing, err := s.repo.Get(ctx, key)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		record.CreatedAt = existing.CreatedAt
	}

	switch {
	case req.Password != "" && req.Password != domain.PasswordPlaceholder:
		h, err := hash.Hash(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		record.PasswordHash = h
	case req.RemovePassword:
	case existing != nil:
		record.PasswordHash = existing.PasswordHash
	}

	if err := s.repo.Save(ctx, key, record); err != nil {
		return nil, err
	}

	s.logger.Info("record saved", "key", key, "type", record.Type, "actor", actor)
	s.notify(domain.ChangeEvent{Kind: domain.ChangeSave, Actor: actor, Saved: []string{key}})

	return domain.NewRecordResponse(key, record), nil
}

func (s *RecordService) Delete(ctx context.Context, actor, key string) error {
	if domain.IsSystemKey(key) || !domain.IsValidKey(key) {
		return ErrRecordNotFound
	}

	if _, err := s.repo.Get(ctx, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRecordNotFound
		}
		return err
	}

	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}

	s.logger.Info("record deleted", "key", key, "actor", actor)
	s.notify(domain.ChangeEvent{Kind: domain.ChangeDelete, Actor: actor, Deleted: []string{key}})

	return nil
}

func (s *RecordService) notify(event domain.ChangeEvent) {
	if s.notifier == nil {
		return
	}
	event.At = time.Now().UTC()
	s.notifier.RecordsChanged(event)
}
