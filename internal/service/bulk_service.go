package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"linknote-server/internal/bulk"
	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
	"linknote-server/internal/repository"
	"linknote-server/pkg/hash"
)

const DefaultBulkConcurrency = 8

// BulkService backs the admin bulk editor. A save replaces the whole
// namespace: keys missing from the document are deleted.
type BulkService struct {
	repo        repository.RecordRepository
	validate    *validator.Validate
	notifier    ChangeNotifier
	logger      logging.Logger
	concurrency int
}

func NewBulkService(repo repository.RecordRepository, notifier ChangeNotifier, logger logging.Logger, concurrency int) *BulkService {
	if logger == nil {
		logger = logging.Nop()
	}
	if concurrency <= 0 {
		concurrency = DefaultBulkConcurrency
	}
	return &BulkService{
		repo:        repo,
		validate:    NewValidator(),
		notifier:    notifier,
		logger:      logger,
		concurrency: concurrency,
	}
}

func (s *BulkService) Export(ctx context.Context) (string, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return "", err
	}
	return bulk.Serialize(records), nil
}

// plan is a checked submission: entries collapsed to one per key, later
// entries winning, with the order of first appearance kept.
type plan struct {
	order   []string
	entries map[string]domain.ParsedEntry
}

func (s *BulkService) check(text string) (*plan, *domain.BulkResult) {
	result := &domain.BulkResult{
		ParseErrors:      []string{},
		ValidationErrors: []string{},
	}

	entries, parseErrs := bulk.Parse(text)
	for _, pe := range parseErrs {
		result.ParseErrors = append(result.ParseErrors, pe.Error())
	}
	if len(parseErrs) > 0 {
		return nil, result
	}

	p := &plan{entries: make(map[string]domain.ParsedEntry, len(entries))}
	for _, e := range entries {
		record := e.Record
		for _, msg := range validateRecord(s.validate, e.Key, &record) {
			result.ValidationErrors = append(result.ValidationErrors, fmt.Sprintf("line %d: %s", e.Line, msg))
		}
		if _, seen := p.entries[e.Key]; !seen {
			p.order = append(p.order, e.Key)
		}
		p.entries[e.Key] = e
	}
	if len(result.ValidationErrors) > 0 {
		return nil, result
	}

	return p, result
}

// Save parses, validates and then applies text. Nothing is written unless the
// whole document is valid. Once writing starts there is no rollback: a store
// failure can leave some stale keys deleted and some entries unsaved.
func (s *BulkService) Save(ctx context.Context, actor, text string) (*domain.BulkResult, error) {
	p, result := s.check(text)
	if p == nil {
		return result, &BulkRejectedError{Result: result}
	}

	existing, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var stale []string
	for key := range existing {
		if _, keep := p.entries[key]; !keep {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range stale {
		g.Go(func() error {
			return s.repo.Delete(gctx, key)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("bulk delete phase failed", "actor", actor, "error", err)
		return nil, fmt.Errorf("bulk delete: %w", err)
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range p.order {
		entry := p.entries[key]
		g.Go(func() error {
			return s.saveEntry(gctx, entry)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("bulk save phase failed", "actor", actor, "deleted", len(stale), "error", err)
		return nil, fmt.Errorf("bulk save: %w", err)
	}

	result.SavedCount = len(p.order)
	result.DeletedCount = len(stale)

	s.logger.Info("bulk save applied", "actor", actor, "saved", result.SavedCount, "deleted", result.DeletedCount)
	if s.notifier != nil {
		s.notifier.RecordsChanged(domain.ChangeEvent{
			Kind:    domain.ChangeBulkSave,
			Actor:   actor,
			Saved:   p.order,
			Deleted: stale,
			At:      time.Now().UTC(),
		})
	}

	return result, nil
}

// saveEntry merges what the document cannot express, the creation time and an
// unchanged password hash, from the stored record.
func (s *BulkService) saveEntry(ctx context.Context, e domain.ParsedEntry) error {
	record := e.Record

	existing, err := s.repo.Get(ctx, e.Key)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if existing != nil {
		record.CreatedAt = existing.CreatedAt
	}

	switch {
	case e.RawPassword != "":
		h, err := hash.Hash(e.RawPassword)
		if err != nil {
			return fmt.Errorf("failed to hash password for %q: %w", e.Key, err)
		}
		record.PasswordHash = h
	case e.KeepPassword && existing != nil:
		record.PasswordHash = existing.PasswordHash
	default:
		record.PasswordHash = ""
	}

	return s.repo.Save(ctx, e.Key, &record)
}

// Preview reports what Save would do with text without writing anything.
func (s *BulkService) Preview(ctx context.Context, text string) (*domain.BulkPreview, error) {
	preview := &domain.BulkPreview{
		Added:   []string{},
		Removed: []string{},
		Changed: []string{},
	}

	p, result := s.check(text)
	preview.ParseErrors = result.ParseErrors
	preview.ValidationErrors = result.ValidationErrors
	if p == nil {
		return preview, nil
	}

	existing, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	proposed := make(map[string]*domain.Record, len(p.entries))
	for key, e := range p.entries {
		r := e.Record
		old := existing[key]
		switch {
		case e.RawPassword != "":
			r.PasswordHash = domain.PasswordPlaceholder
		case e.KeepPassword && old.IsProtected():
			r.PasswordHash = old.PasswordHash
		}
		proposed[key] = &r

		switch {
		case old == nil:
			preview.Added = append(preview.Added, key)
		case old.Type != r.Type || old.Content != r.Content || e.RawPassword != "" ||
			old.IsProtected() != r.IsProtected():
			preview.Changed = append(preview.Changed, key)
		}
	}
	for key := range existing {
		if _, ok := proposed[key]; !ok {
			preview.Removed = append(preview.Removed, key)
		}
	}
	sort.Strings(preview.Added)
	sort.Strings(preview.Removed)
	sort.Strings(preview.Changed)

	preview.Diff = lineDiff(bulk.Serialize(existing), bulk.Serialize(proposed))

	return preview, nil
}

// lineDiff renders a line based diff with +, - and space prefixes.
func lineDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}
	return out.String()
}
