package interfaces

import (
	"context"

	"supertrend-bot/internal/types"
)

// Stepper advances one instrument's strategy by a single bar.
type Stepper interface {
	Step(ctx context.Context) (*types.StepResult, error)
	Instrument() types.Instrument
}
