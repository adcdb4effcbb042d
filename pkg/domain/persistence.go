package domain

import (
	"context"
	"fmt"
)

// RunStore is a minimal abstraction over durable run-record backends. It
// mirrors the subset of store capabilities used directly by higher layers.
type RunStore interface {
	SaveRun(ctx context.Context, rec RunRecord) (RunRecord, error)
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
}

// ErrRunNotFound is returned by store operations that require an existing run.
type ErrRunNotFound struct {
	ID string
}

func (e ErrRunNotFound) Error() string {
	return fmt.Sprintf("run %q not found", e.ID)
}
