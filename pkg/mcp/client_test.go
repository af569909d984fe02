package mcp

import (
	"context"
	"os/exec"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectHelper(t *testing.T, name string, extraEnv map[string]string, grace time.Duration) *Client {
	t.Helper()
	spec, err := helperBuilder(extraEnv)(name, ServerConfig{})
	require.NoError(t, err)
	cmd, err := newCommand(name, spec, grace)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := Connect(ctx, ClientConfig{ServerName: name, Command: cmd, GracePeriod: grace})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestClient_Session(t *testing.T) {
	ctx := context.Background()
	c := connectHelper(t, "solo", nil, time.Second)

	assert.Equal(t, ServerInfo{Name: "helper-solo", Version: "1.0.0"}, c.ServerInfo())
	assert.NotEmpty(t, c.ProtocolVersion())
	require.NoError(t, c.Ping(ctx))

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"echo", "fail", "empty", "text", "crash", "slow"}, names)

	res, err := c.CallTool(ctx, "text", nil)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", resultText(res))

	require.NoError(t, c.Close(ctx))
	assert.NoError(t, c.Err())
	assert.Error(t, c.Ping(ctx))
}

func TestClient_ExpiredContextSkipsRequest(t *testing.T) {
	c := connectHelper(t, "solo", nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Ping(ctx), context.Canceled)
	require.NoError(t, c.Ping(context.Background()))
}

func TestClient_CloseKillsLingeringServer(t *testing.T) {
	c := connectHelper(t, "stubborn", map[string]string{"HELPER_LINGER": "1"}, 200*time.Millisecond)

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.NoError(t, c.Err())

	// Idempotent.
	require.NoError(t, c.Close(ctx))
}

func TestConnect_Errors(t *testing.T) {
	_, err := Connect(context.Background(), ClientConfig{ServerName: "none"})
	require.Error(t, err)

	_, err = Connect(context.Background(), ClientConfig{
		ServerName: "missing",
		Command:    exec.Command("/nonexistent/agentflow-mcp-server"),
	})
	require.Error(t, err)

	var nilClient *Client
	assert.NoError(t, nilClient.Close(context.Background()))
}

func TestResultValue(t *testing.T) {
	tests := []struct {
		name   string
		result *sdk.CallToolResult
		want   any
		empty  bool
	}{
		{name: "empty", result: &sdk.CallToolResult{}, want: nil, empty: true},
		{name: "structured wins", result: &sdk.CallToolResult{
			StructuredContent: map[string]any{"k": "v"},
			Content:           []sdk.Content{&sdk.TextContent{Text: "ignored"}},
		}, want: map[string]any{"k": "v"}},
		{name: "text joined", result: &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "a"}, &sdk.TextContent{Text: "b"}},
		}, want: "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, resultEmpty(tt.result))
			got, err := resultValue(tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("mixed blocks kept as JSON", func(t *testing.T) {
		got, err := resultValue(&sdk.CallToolResult{Content: []sdk.Content{
			&sdk.TextContent{Text: "a"},
			&sdk.ImageContent{Data: []byte{0, 0, 0}, MIMEType: "image/png"},
		}})
		require.NoError(t, err)
		blocks, ok := got.([]any)
		require.True(t, ok)
		require.Len(t, blocks, 2)
		assert.Equal(t, "text", blocks[0].(map[string]any)["type"])
		assert.Equal(t, "a", blocks[0].(map[string]any)["text"])
		assert.Equal(t, "image", blocks[1].(map[string]any)["type"])
		assert.Equal(t, "AAAA", blocks[1].(map[string]any)["data"])
	})
}

func TestToolFromSDK(t *testing.T) {
	tool, err := toolFromSDK(&sdk.Tool{
		Name:        "search",
		Description: "find things",
		InputSchema: map[string]any{"type": "object", "required": []any{"q"}},
	})
	require.NoError(t, err)
	assert.Equal(t, Tool{
		Name:        "search",
		Description: "find things",
		InputSchema: map[string]any{"type": "object", "required": []any{"q"}},
	}, tool)

	bare, err := toolFromSDK(&sdk.Tool{Name: "bare"})
	require.NoError(t, err)
	assert.Nil(t, bare.InputSchema)
}
