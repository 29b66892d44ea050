// Package pipeline drives a matter through the fixed nine-stage review
// pipeline, persisting state after every transition so pollers observe
// monotonic progress.
package pipeline

import (
	"context"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
)

// StageResult is what a runner hands back to the engine: a partial
// matter update plus the stage's own output payload, echoed verbatim
// into StageInfo.Data for UI consumption.
type StageResult struct {
	Update matter.Update
	Data   any
}

// Runner executes one pipeline stage. Runners may call the model any
// number of times, query the retriever, and write incremental snapshots
// to the store mid-stage; the engine persists their final result at the
// stage boundary either way.
type Runner interface {
	Stage() matter.StageID
	Run(ctx context.Context, m *matter.Matter) (*StageResult, error)
}
