package channel

import (
	"encoding/json"
	"errors"
)

// MethodCall is a request envelope: a method name and its raw arguments.
type MethodCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is exactly one of a result, an error or not-implemented.
type Response struct {
	Result         any
	Err            *ChannelError
	NotImplemented bool
}

// Success wraps a result value.
func Success(result any) Response {
	return Response{Result: result}
}

// Failure wraps a channel error.
func Failure(err *ChannelError) Response {
	return Response{Err: err}
}

// NotImplemented is the response for unknown or unsupported methods.
func NotImplemented() Response {
	return Response{NotImplemented: true}
}

// Code labels the outcome: "ok", "not_implemented" or the error code.
func (r Response) Code() string {
	switch {
	case r.NotImplemented:
		return "not_implemented"
	case r.Err != nil:
		return r.Err.Code
	default:
		return "ok"
	}
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.NotImplemented:
		return json.Marshal(struct {
			NotImplemented bool `json:"not_implemented"`
		}{true})
	case r.Err != nil:
		return json.Marshal(struct {
			Error *ChannelError `json:"error"`
		}{r.Err})
	default:
		return json.Marshal(struct {
			Result any `json:"result"`
		}{r.Result})
	}
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Result         any           `json:"result"`
		Error          *ChannelError `json:"error"`
		NotImplemented bool          `json:"not_implemented"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Response{Result: raw.Result, Err: raw.Error, NotImplemented: raw.NotImplemented}
	return nil
}

// MessageCodec encodes and decodes channel envelopes.
type MessageCodec interface {
	DecodeCall(data []byte) (MethodCall, error)
	EncodeResponse(resp Response) ([]byte, error)
}

// JSONCodec implements MessageCodec using JSON encoding.
type JSONCodec struct{}

// DecodeCall parses a request envelope. The method name is required.
func (JSONCodec) DecodeCall(data []byte) (MethodCall, error) {
	var call MethodCall
	if len(data) == 0 {
		return call, ErrInvalidEnvelope
	}
	if err := json.Unmarshal(data, &call); err != nil {
		return call, errors.Join(ErrInvalidEnvelope, err)
	}
	if call.Method == "" {
		return call, errors.Join(ErrInvalidEnvelope, errors.New("missing method"))
	}
	return call, nil
}

// EncodeResponse serializes a response envelope.
func (JSONCodec) EncodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DefaultCodec is the codec used by the transports.
var DefaultCodec MessageCodec = JSONCodec{}

// Standard errors for channel operations.
var (
	// ErrInvalidEnvelope indicates the request could not be decoded at all.
	ErrInvalidEnvelope = errors.New("invalid method call envelope")

	// ErrInvalidArguments indicates the arguments did not match the method.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// ChannelError is the error half of a response envelope.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError creates a new ChannelError with the given code and message.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}

// NewChannelErrorWithDetails creates a new ChannelError with additional details.
func NewChannelErrorWithDetails(code, message string, details any) *ChannelError {
	return &ChannelError{Code: code, Message: message, Details: details}
}
