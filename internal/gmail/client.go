package gmail

import (
	"context"
	"errors"
)

var (
	// ErrLabelExists is returned by CreateLabel when the name is already taken.
	ErrLabelExists = errors.New("label already exists")
	// ErrNotFound is returned when a thread or label id is unknown to the provider.
	ErrNotFound = errors.New("not found")
)

// Client is the narrow Gmail surface required by chronotriage.
type Client interface {
	ListThreads(ctx context.Context, q Query, pageToken string, pageSize int) (ThreadPage, error)
	GetThread(ctx context.Context, id ThreadID) (Thread, error)
	ModifyThread(ctx context.Context, id ThreadID, ops ModifyOps) error
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, spec LabelSpec) (Label, error)
	UpdateLabel(ctx context.Context, id LabelID, spec LabelSpec) (Label, error)
	DeleteLabel(ctx context.Context, id LabelID) error
}
