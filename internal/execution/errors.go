package execution

import "errors"

// Sentinel errors returned by Orchestrator.Execute. Each maps to a "do
// nothing" validation outcome except ErrExecutionBusy, which is the
// single-flight rejection diagnostic.
var (
	ErrExecutionBusy       = errors.New("EXECUTION BUSY")
	ErrEmergencyStopped    = errors.New("execution: emergency stop sentinel present")
	ErrPositionCapReached  = errors.New("execution: max positions reached")
	ErrEntryCriteriaNotMet = errors.New("execution: entry criteria not met")
	ErrInsufficientCapital = errors.New("execution: invested capital at or above total capital")
)
