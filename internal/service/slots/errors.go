package slots

import (
	"fmt"
	"time"
)

// InvalidRangeError rejects a range whose end precedes its start.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: end %s is before start %s", e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

// SlotGenerationError wraps any lookup failure during generation.
type SlotGenerationError struct {
	DoctorID int64
	Err      error
}

func (e *SlotGenerationError) Error() string {
	return fmt.Sprintf("generate slots for doctor %d: %v", e.DoctorID, e.Err)
}

func (e *SlotGenerationError) Unwrap() error {
	return e.Err
}
