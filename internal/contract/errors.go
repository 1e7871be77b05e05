package contract

import (
	"errors"

	"github.com/ShayCichocki/consumer-contracts/internal/hooks"
	"github.com/ShayCichocki/consumer-contracts/internal/schema"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// ErrInvalidContract marks construction failures. It is never retried.
var ErrInvalidContract = errors.New("invalid contract")

// ConfigurationError reports a contract that cannot be constructed.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "Invalid contract: " + e.Msg }

// Is reports ErrInvalidContract.
func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidContract }

func missingProperty(key string) error {
	return &ConfigurationError{Msg: "Missing required property [" + key + "]"}
}

// Kind classifies an error returned by a contract.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindHook          Kind = "hook"
	KindRequest       Kind = "request"
	KindSchema        Kind = "schema"
	KindUnknown       Kind = "unknown"
)

// KindOf classifies err. A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		herr *hooks.HookError
		rerr *transport.RequestError
		verr *schema.ValidationError
	)
	switch {
	case errors.Is(err, ErrInvalidContract):
		return KindConfiguration
	case errors.As(err, &herr):
		return KindHook
	case errors.As(err, &verr):
		return KindSchema
	case errors.As(err, &rerr):
		return KindRequest
	}
	return KindUnknown
}

// Detail returns the schema failure detail carried by err, if any.
func Detail(err error) string {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return verr.Detail()
	}
	return ""
}
