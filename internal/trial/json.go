package trial

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts a number or any string ParsePhase understands.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 || n > 4 {
			return fmt.Errorf("phase %d out of range 0-4", n)
		}
		*p = Phase(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("phase must be a number or string: %w", err)
	}
	*p = ParsePhase(s)
	return nil
}

// UnmarshalJSON normalises registry spellings through ParseStatus.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	*s = ParseStatus(raw)
	return nil
}
