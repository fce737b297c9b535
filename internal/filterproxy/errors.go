package filterproxy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrMissingDelegateIdentifier is returned when neither delegate-class nor
	// delegate-key is configured.
	ErrMissingDelegateIdentifier = errors.New("filterproxy: one of delegate-class or delegate-key must be set, and the matching component must be registered")

	// ErrIllegalState is returned when the proxy tries to initialize a delegate
	// it does not hold. It indicates a bug in the proxy.
	ErrIllegalState = errors.New("filterproxy: delegate filter was not set up")

	// ErrClosed is returned by Handle after Destroy.
	ErrClosed = errors.New("filterproxy: proxy destroyed")

	// ErrNotAFilter is wrapped by DelegateNotFoundError when the registry
	// holds a component that does not implement Filter.
	ErrNotAFilter = errors.New("filterproxy: component does not implement Filter")

	// ErrNoLocator is returned by New when no Locator is given.
	ErrNoLocator = errors.New("filterproxy: locator is required")

	errNoTypeResolver = errors.New("no type resolver configured")
)

// ConfigurationError reports an init parameter with an unrecognized value.
type ConfigurationError struct {
	Param    string
	Value    string
	Accepted []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("filterproxy: invalid %s %q, valid values are [%s]",
		e.Param, e.Value, strings.Join(e.Accepted, " "))
}

// ClassLoadError reports a delegate-class that the type universe cannot resolve.
type ClassLoadError struct {
	TypeName string
	Err      error
}

func (e *ClassLoadError) Error() string {
	return fmt.Sprintf("filterproxy: cannot load %s: %v", e.TypeName, e.Err)
}

func (e *ClassLoadError) Unwrap() error {
	return e.Err
}

// DelegateNotFoundError reports a lookup that produced no usable delegate.
type DelegateNotFoundError struct {
	TypeName string
	Key      string
	Err      error
}

func (e *DelegateNotFoundError) Error() string {
	var msg string
	if e.TypeName != "" {
		msg = fmt.Sprintf("filterproxy: cannot find delegate for class %s", e.TypeName)
	} else {
		msg = fmt.Sprintf("filterproxy: cannot find delegate for key %q", e.Key)
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DelegateNotFoundError) Unwrap() error {
	return e.Err
}

// Reason returns a short, stable label for err, used in metrics and logs.
func Reason(err error) string {
	var (
		cfgErr      *ConfigurationError
		loadErr     *ClassLoadError
		notFoundErr *DelegateNotFoundError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrIllegalState):
		return "illegal_state"
	case errors.Is(err, ErrMissingDelegateIdentifier):
		return "missing_identifier"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &loadErr):
		return "class_load"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.Is(err, errLocate):
		return "locate"
	case errors.Is(err, errInit):
		return "init"
	default:
		return "delegate"
	}
}

// StatusCode maps a Handle error to the HTTP status a dispatcher should send.
func StatusCode(err error) int {
	if errors.Is(err, ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var (
	errLocate = errors.New("locate registry")
	errInit   = errors.New("init delegate")
)
