package tools

import (
	"context"
	"time"
)

// Clock answers questions about the current local time.
type Clock struct {
	Now func() time.Time
}

func (Clock) Definition() Definition {
	return Definition{
		Name:        "get_time",
		Description: "Get the current local date and time.",
	}
}

func (c Clock) Invoke(context.Context, map[string]any) string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return now().Format("It is 3:04 PM on Monday, January 2, 2006.")
}
