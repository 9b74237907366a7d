package budget

import (
	"errors"
	"fmt"
)

// ErrBudget matches every ErrExceeded.
var ErrBudget = errors.New("budget exceeded")

// ErrExceeded is returned when usage surpasses configured limits.
type ErrExceeded struct {
	Kind  string
	Usage string
	Limit string
}

func (e ErrExceeded) Error() string {
	return fmt.Sprintf("budget %s exceeded: usage=%s limit=%s", e.Kind, e.Usage, e.Limit)
}

func (e ErrExceeded) Is(target error) bool { return target == ErrBudget }
