package services

import (
	"context"
	"fmt"

	"github.com/kith-app/kith/internal/client/localstore"
	"github.com/kith-app/kith/internal/client/models"
)

// Overview is a one-line listing of a record for the CLI.
type Overview struct {
	ID    string
	Kind  models.Kind
	Title string
}

// RecordService exposes typed record operations over the local store. All
// reads and writes are local; synchronization happens in the background.
type RecordService interface {
	Add(ctx context.Context, v models.Typed) (string, error)
	Update(ctx context.Context, id string, v models.Typed) error
	List(ctx context.Context, kind models.Kind) ([]Overview, error)
	Show(ctx context.Context, id string) (any, error)
	Delete(ctx context.Context, id string) error
	Conflicts(ctx context.Context) ([]models.Record, error)
	Resolve(ctx context.Context, id string, merged []byte) error
}

type recordService struct {
	store *localstore.Store
}

// NewRecordService constructs a RecordService over the given store.
func NewRecordService(store *localstore.Store) RecordService {
	return &recordService{store: store}
}

func (s *recordService) Add(ctx context.Context, v models.Typed) (string, error) {
	kind, payload, err := models.WrapPayload(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	rec := &models.Record{Kind: kind, Payload: payload}
	if err := s.store.Write(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *recordService) Update(ctx context.Context, id string, v models.Typed) error {
	kind, payload, err := models.WrapPayload(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.store.Write(ctx, &models.Record{ID: id, Kind: kind, Payload: payload})
}

func (s *recordService) List(ctx context.Context, kind models.Kind) ([]Overview, error) {
	rows, err := s.store.Query(ctx, kind, nil)
	if err != nil {
		return nil, err
	}

	result := make([]Overview, 0, len(rows))
	for _, row := range rows {
		result = append(result, Overview{ID: row.ID, Kind: row.Kind, Title: title(&row)})
	}
	return result, nil
}

func (s *recordService) Show(ctx context.Context, id string) (any, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.UnwrapPayload(rec.Kind, rec.Payload)
}

func (s *recordService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *recordService) Conflicts(ctx context.Context) ([]models.Record, error) {
	return s.store.NeedingAttention(ctx)
}

func (s *recordService) Resolve(ctx context.Context, id string, merged []byte) error {
	return s.store.Resolve(ctx, id, merged)
}

// title picks the human-facing line for a record listing.
func title(rec *models.Record) string {
	v, err := models.UnwrapPayload(rec.Kind, rec.Payload)
	if err != nil {
		return "(unreadable)"
	}
	switch p := v.(type) {
	case models.Person:
		return p.FirstName + " " + p.LastName
	case models.Note:
		return p.Title
	case models.Group:
		return p.Name
	case models.ActionItem:
		return p.Description
	default:
		return rec.ID
	}
}
