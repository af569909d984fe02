// Package flowerr defines the error taxonomy shared by the dispatch runtime.
//
// Errors carry a Kind so callers can branch with errors.Is on a kind sentinel
// (ErrTool, ErrNetwork, ...) while still unwrapping to the underlying cause.
package flowerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindTool           Kind = "tool"
	KindServerNotFound Kind = "server_not_found"
	KindNetwork        Kind = "network"
	KindParse          Kind = "parse"
	KindExecution      Kind = "execution"
	KindPlanning       Kind = "planning"
	KindAPIClient      Kind = "api_client"
	KindConfig         Kind = "config"
)

// Kind sentinels. errors.Is(err, ErrTool) is true for any *Error of KindTool.
var (
	ErrTool      = &Error{Kind: KindTool}
	ErrNetwork   = &Error{Kind: KindNetwork}
	ErrParse     = &Error{Kind: KindParse}
	ErrExecution = &Error{Kind: KindExecution}
	ErrPlanning  = &Error{Kind: KindPlanning}
	ErrAPIClient = &Error{Kind: KindAPIClient}
	ErrConfig    = &Error{Kind: KindConfig}
)

var (
	// ErrServerNotFound is returned when a tool server name has no live connection.
	ErrServerNotFound = &Error{Kind: KindServerNotFound, Message: "server not found"}

	// ErrToolNotFound is returned when a tool name resolves to nothing.
	ErrToolNotFound = errors.New("tool not found")

	// ErrPoolShutDown is returned when submitting to a closed worker pool.
	ErrPoolShutDown = errors.New("task pool is shut down")

	// ErrWorkerDisconnected is returned when a worker drops a task reply without answering.
	ErrWorkerDisconnected = errors.New("worker disconnected")

	// ErrInboxClosed is returned when sending to an actor whose loop has exited.
	ErrInboxClosed = errors.New("actor inbox closed")

	// ErrReplyDropped is returned when a reply channel is dropped without a value.
	ErrReplyDropped = errors.New("reply dropped")
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(kindLabel(e.Kind))
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	msg := strings.TrimSpace(e.Message)
	switch {
	case msg != "" && e.Err != nil:
		fmt.Fprintf(&b, ": %s: %v", msg, e.Err)
	case msg != "":
		b.WriteString(": ")
		b.WriteString(msg)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by kind. A target that carries a message also
// requires the same message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Op == "" && (t.Message == "" || t.Message == e.Message)
}

func kindLabel(k Kind) string {
	switch k {
	case KindTool:
		return "tool error"
	case KindServerNotFound:
		return "server not found"
	case KindNetwork:
		return "network error"
	case KindParse:
		return "parse error"
	case KindExecution:
		return "execution error"
	case KindPlanning:
		return "planning error"
	case KindAPIClient:
		return "api client error"
	case KindConfig:
		return "config error"
	default:
		return "error"
	}
}

// New builds a classified error.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Tool reports an unknown tool, a handler failure, or a remote-call failure.
func Tool(op, message string, cause error) *Error { return New(KindTool, op, message, cause) }

// Network reports a transport failure talking to a subprocess or backend.
func Network(op, message string, cause error) *Error { return New(KindNetwork, op, message, cause) }

// Parse reports a malformed structured response.
func Parse(op, message string, cause error) *Error { return New(KindParse, op, message, cause) }

// Execution reports a pool or actor lifecycle failure.
func Execution(op, message string, cause error) *Error {
	return New(KindExecution, op, message, cause)
}

// Planning reports a planner failure.
func Planning(op, message string, cause error) *Error { return New(KindPlanning, op, message, cause) }

// APIClient reports a non-success response from an LLM backend.
func APIClient(op, message string, cause error) *Error {
	return New(KindAPIClient, op, message, cause)
}

// Config reports invalid or missing configuration.
func Config(op, message string, cause error) *Error { return New(KindConfig, op, message, cause) }

// ServerNotFound reports a lookup miss for the named server.
func ServerNotFound(op, server string) *Error {
	return &Error{Kind: KindServerNotFound, Op: op, Message: "server not found", Err: fmt.Errorf("server %q", server)}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
