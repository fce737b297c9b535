package filterproxy

import "fmt"

// Init parameters understood by the proxy.
const (
	ParamInitType       = "init-type"
	ParamLookupOnlyOnce = "lookup-only-once"
	ParamDelegateClass  = "delegate-class"
	ParamDelegateKey    = "delegate-key"
)

// InitMode controls when the proxy calls Init on its delegate.
type InitMode int

const (
	// InitContext initializes the delegate once, right after the first
	// successful lookup.
	InitContext InitMode = iota
	// InitRequest initializes the delegate on every request.
	InitRequest
	// InitNever leaves initialization to whoever registered the delegate.
	InitNever
)

// acceptedInitTypes is reported back when init-type is invalid.
var acceptedInitTypes = []string{"<absent>", "context", "request", "never"}

func (m InitMode) String() string {
	switch m {
	case InitContext:
		return "context"
	case InitRequest:
		return "request"
	case InitNever:
		return "never"
	default:
		return fmt.Sprintf("InitMode(%d)", int(m))
	}
}

// ParseInitMode maps an init-type parameter to its mode. An absent parameter
// means InitContext. A present but empty value is invalid.
func ParseInitMode(value string, present bool) (InitMode, error) {
	if !present {
		return InitContext, nil
	}

	switch value {
	case "context":
		return InitContext, nil
	case "request":
		return InitRequest, nil
	case "never":
		return InitNever, nil
	}

	return 0, &ConfigurationError{
		Param:    ParamInitType,
		Value:    value,
		Accepted: acceptedInitTypes,
	}
}

// ParseLookupOnlyOnce reports whether lookup-only-once is enabled. Only the
// exact value "true" enables it; absent or anything else is false.
func ParseLookupOnlyOnce(value string, present bool) bool {
	return present && value == "true"
}

// Params holds a filter's init parameters. A key missing from the map is an
// absent parameter.
type Params map[string]string

// Get returns the named parameter and whether it is present.
func (p Params) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// Config is what a filter is set up with. The proxy passes its own Config
// through to the delegate's Init.
type Config struct {
	Name   string
	Params Params
}

// Param returns the named init parameter and whether it is present.
func (c Config) Param(name string) (string, bool) {
	return c.Params.Get(name)
}

// Options is the parsed, immutable form of a proxy's init parameters.
type Options struct {
	InitMode       InitMode
	LookupOnlyOnce bool
	// DelegateType wins over DelegateKey when both are set. A present but
	// empty value still counts as set.
	DelegateType    string
	DelegateKey     string
	HasDelegateType bool
	HasDelegateKey  bool
}

// ParseOptions parses init parameters. It never touches a registry.
func ParseOptions(params Params) (Options, error) {
	mode, err := ParseInitMode(params.Get(ParamInitType))
	if err != nil {
		return Options{}, err
	}

	delegateType, hasType := params.Get(ParamDelegateClass)
	delegateKey, hasKey := params.Get(ParamDelegateKey)

	return Options{
		InitMode:        mode,
		LookupOnlyOnce:  ParseLookupOnlyOnce(params.Get(ParamLookupOnlyOnce)),
		DelegateType:    delegateType,
		DelegateKey:     delegateKey,
		HasDelegateType: hasType,
		HasDelegateKey:  hasKey,
	}, nil
}
