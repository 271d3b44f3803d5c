// Package records is the port to the CRM CRUD layer consumed by
// create_record/update_record nodes and scheduled client updates.
package records

import "context"

type Store interface {
	CreateRecord(ctx context.Context, entity string, fields map[string]any) (string, error)
	UpdateRecord(ctx context.Context, entity string, id string, fields map[string]any) error
}

type NoopStore struct{}

var _ Store = NoopStore{}

func (NoopStore) CreateRecord(ctx context.Context, entity string, fields map[string]any) (string, error) {
	return "", nil
}

func (NoopStore) UpdateRecord(ctx context.Context, entity string, id string, fields map[string]any) error {
	return nil
}
