package source

import "fmt"

// ConfigErrorKind classifies ConfigStore failures.
type ConfigErrorKind int

// Kinds of ConfigError.
const (
	// Corrupt means neither the persisted nor the bundled document parses.
	Corrupt ConfigErrorKind = iota + 1
	// Invalid means a candidate document failed decoding or validation.
	Invalid
	// Network means a remote document could not be retrieved.
	Network
	// IO means local storage could not be read or written.
	IO
)

func (k ConfigErrorKind) String() string {
	switch k {
	case Corrupt:
		return "corrupt"
	case Invalid:
		return "invalid"
	case Network:
		return "network"
	case IO:
		return "io"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrCorrupt = &ConfigError{Kind: Corrupt}
	ErrInvalid = &ConfigError{Kind: Invalid}
	ErrNetwork = &ConfigError{Kind: Network}
	ErrIO      = &ConfigError{Kind: IO}
)

// ConfigError is returned by every ConfigStore operation that fails.
type ConfigError struct {
	Kind ConfigErrorKind
	Op   string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config %s error", e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("config %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: config %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is matches any ConfigError of the same kind.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	return ok && t.Kind == e.Kind
}

func configErr(kind ConfigErrorKind, op string, err error) error {
	return &ConfigError{Kind: kind, Op: op, Err: err}
}
