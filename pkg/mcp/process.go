package mcp

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultGracePeriod = 2 * time.Second

// newCommand prepares the server subprocess. It is started by the SDK
// transport; its lifetime is not bound to any context and only Client.Close
// stops it.
func newCommand(server string, spec LaunchSpec, grace time.Duration) (*exec.Cmd, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, errors.New("mcp: server command is required")
	}

	// #nosec G204 -- command and args come from operator configuration.
	cmd := exec.Command(spec.Command, slices.Clone(spec.Args)...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(spec.Env)...)
	}
	cmd.Stderr = &stderrLogger{server: server}
	cmd.WaitDelay = grace
	return cmd, nil
}

// stderrLogger forwards server stderr to the logger line by line.
type stderrLogger struct {
	server string
	buf    []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:i]), "\r")
		w.buf = w.buf[i+1:]
		if line != "" {
			log.Debug().Str("server", w.server).Str("stderr", line).Msg("MCP server stderr")
		}
	}
	return len(p), nil
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
