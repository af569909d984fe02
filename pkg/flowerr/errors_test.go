package flowerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsByKind(t *testing.T) {
	err := Tool("execute", "tool 'x' not found", ErrToolNotFound)

	assert.ErrorIs(t, err, ErrTool)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, KindTool, KindOf(err))
}

func TestError_WrappedChain(t *testing.T) {
	inner := Network("mcp.call", "write request", errors.New("broken pipe"))
	err := fmt.Errorf("calling server: %w", inner)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Contains(t, err.Error(), "broken pipe")
}

func TestServerNotFound(t *testing.T) {
	err := ServerNotFound("list_tools", "search")

	assert.ErrorIs(t, err, ErrServerNotFound)
	assert.Contains(t, err.Error(), "search")
	assert.NotErrorIs(t, Tool("x", "other", nil), ErrServerNotFound)
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "kind only", err: &Error{Kind: KindParse}, want: "parse error"},
		{name: "with op", err: Execution("pool.submit", "", ErrPoolShutDown), want: "execution error [pool.submit]: task pool is shut down"},
		{name: "message and cause", err: Tool("", "call failed", errors.New("boom")), want: "tool error: call failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
