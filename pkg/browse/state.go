// Package browse drives paginated loading of one image list.
package browse

import (
	"fmt"

	"github.com/dixieflatline76/wallsource/pkg/fetch"
)

// Status is the controller's state-machine position.
type Status int

// Controller statuses.
const (
	Idle Status = iota
	Loading
	Loaded
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{Idle, Loading, Loaded, Error} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// State is an immutable snapshot of a list. Items are in arrival order with
// unique ids. Page is the page being loaded while Loading, the next page to
// request once Loaded, and the failed page after an Error.
type State struct {
	Status     Status            `json:"status"`
	SourceKey  string            `json:"sourceKey"`
	Items      []fetch.ImageItem `json:"items"`
	Page       int               `json:"page"`
	Query      string            `json:"query"`
	Sorting    string            `json:"sorting,omitempty"`
	EndOfList  bool              `json:"endOfList"`
	Reset      bool              `json:"reset"`
	ErrKind    string            `json:"errorKind,omitempty"`
	ErrMessage string            `json:"errorMessage,omitempty"`
}

// IsLoading reports whether a request is in flight.
func (s State) IsLoading() bool {
	return s.Status == Loading
}
