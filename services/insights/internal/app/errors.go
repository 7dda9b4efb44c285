package app

import "fmt"

// RateLimitError reports that generation is inside the cooldown window.
// HoursRemaining lets the caller back off precisely.
type RateLimitError struct {
	HoursRemaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, try again in %d hours", e.HoursRemaining)
}
