package interfaces

import (
	"context"
	"sync"

	"smartguard-relay/src/models"
)

// -----------------------------------------------------------------------------
// IIngestSource bridges an upstream publish/subscribe feed into the pipeline.
// -----------------------------------------------------------------------------

type IIngestSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// Start begins receiving readings
	// ctx: controls the lifecycle (cancellation stops the source and its retry loop)
	// outputChan: decoded readings, in arrival order
	// wg: WaitGroup to signal when the source has fully stopped
	Start(ctx context.Context, outputChan chan<- models.MRawReading, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates the source. Cancelling the context passed to Start is equivalent.
	Stop() error

	// -----------------------------------------------------------------------------

	// Status reports connection health for the health endpoint
	Status() models.MUpstreamStatus
}
