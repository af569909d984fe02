package toolregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/mcp"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "agentflow.toolregistry"

// NamespaceSeparator joins server and tool names for re-keyed remote tools.
const NamespaceSeparator = "::"

// Registry is the merged local and remote tool namespace.
type Registry struct {
	mu      sync.RWMutex
	local   map[string]LocalTool
	remote  map[string]RemoteDescriptor
	order   []Descriptor
	schemas map[string]*gojsonschema.Schema
	target  Remote
}

// New creates an empty Registry.
func New() *Registry {
	observability.EnsureRegistered()

	return &Registry{
		local:   make(map[string]LocalTool),
		remote:  make(map[string]RemoteDescriptor),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// RegisterLocal adds tool to the namespace. Registering a name again replaces
// the previous handler and its catalog entry in place. A remote entry of the
// same name moves to "server::tool", as on a refresh collision.
func (r *Registry) RegisterLocal(tool LocalTool) {
	name := tool.Name()
	desc := LocalDescriptor{
		Name:        name,
		Description: tool.Description(),
		Schema:      tool.ParameterSchema(),
	}
	schema := compileSchema(name, desc.Schema)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.local[name]; exists {
		r.replaceInOrder(name, desc)
		log.Warn().Str("tool", name).Msg("Local tool re-registered, replacing previous handler")
	} else {
		if shadowed, ok := r.remote[name]; ok {
			r.rekeyRemote(shadowed)
		}
		r.order = append(r.order, desc)
	}
	r.local[name] = tool
	r.setSchema(name, schema)
	r.recordSizes()

	log.Info().Str("tool", name).Msg("Local tool registered")
}

// RefreshRemote rebuilds the remote part of the namespace from remote and
// remembers it as the call-through target. Servers are listed outside the
// lock; the swap is applied at once. On a listing error the servers listed
// so far are kept and the error is returned.
func (r *Registry) RefreshRemote(ctx context.Context, remote Remote) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "toolregistry.refresh_remote")

	servers := remote.ActiveServerNames()
	sort.Strings(servers)

	type listing struct {
		server string
		tools  []mcp.Tool
	}
	listings := make([]listing, 0, len(servers))
	var listErr error
	for _, server := range servers {
		tools, err := remote.ListTools(ctx, server)
		if err != nil {
			listErr = fmt.Errorf("failed to list tools on server %s: %w", server, err)
			break
		}
		listings = append(listings, listing{server: server, tools: tools})
	}

	r.mu.Lock()
	for name := range r.remote {
		delete(r.schemas, name)
	}
	kept := r.order[:0]
	for _, d := range r.order {
		if _, ok := d.(LocalDescriptor); ok {
			kept = append(kept, d)
		}
	}
	r.order = kept
	r.remote = make(map[string]RemoteDescriptor)
	r.target = remote

	for _, l := range listings {
		for _, tool := range l.tools {
			key := tool.Name
			if r.taken(key) {
				key = l.server + NamespaceSeparator + tool.Name
				if r.taken(key) {
					log.Warn().Str("server", l.server).Str("tool", tool.Name).Msg("Duplicate remote tool skipped")
					continue
				}
				log.Debug().Str("server", l.server).Str("tool", tool.Name).Str("key", key).Msg("Remote tool re-keyed on collision")
			}
			desc := RemoteDescriptor{
				Name:        key,
				Description: tool.Description,
				Schema:      tool.InputSchema,
				ServerName:  l.server,
				ToolName:    tool.Name,
			}
			r.remote[key] = desc
			r.order = append(r.order, desc)
			r.setSchema(key, compileSchema(key, tool.InputSchema))
		}
	}
	remoteCount := len(r.remote)
	r.recordSizes()
	r.mu.Unlock()

	log.Info().Int("servers", len(listings)).Int("tools", remoteCount).Msg("Remote tools refreshed")
	tracing.EndSpan(span, listErr)
	return listErr
}

// Execute runs the named tool: local first, then remote.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (out any, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "toolregistry.execute", attribute.String("tool", name))
	start := time.Now()
	source := "unknown"
	defer func() {
		observability.RecordToolExecution(name, source, time.Since(start), err == nil)
		observability.RecordToolAudit(ctx, name, source, err == nil, nil)
		tracing.EndSpan(span, err)
	}()

	r.mu.RLock()
	local, isLocal := r.local[name]
	rd, isRemote := r.remote[name]
	schema := r.schemas[name]
	target := r.target
	r.mu.RUnlock()

	if params == nil {
		params = map[string]any{}
	}

	switch {
	case isLocal:
		source = "local"
		if err := validateParams(name, schema, params); err != nil {
			return nil, err
		}
		out, err := local.Execute(ctx, params, ec)
		if err != nil {
			return nil, asToolError(name, err)
		}
		return out, nil

	case isRemote:
		source = "remote"
		if err := validateParams(name, schema, params); err != nil {
			return nil, err
		}
		if target == nil {
			return nil, flowerr.Tool("toolregistry.execute", fmt.Sprintf("no remote target for tool '%s'", name), nil)
		}
		out, err := target.CallTool(ctx, rd.ServerName, rd.ToolName, params)
		if err != nil {
			return nil, flowerr.Tool("toolregistry.execute", fmt.Sprintf("remote tool '%s' failed", name), err)
		}
		return out, nil

	default:
		return nil, flowerr.Tool("toolregistry.execute", fmt.Sprintf("tool '%s' not found", name), flowerr.ErrToolNotFound)
	}
}

// Catalog returns the planner-facing description of every tool. A refresh
// lists locals first in registration order, then remote tools in refresh
// order; locals registered later are appended.
func (r *Registry) Catalog() []CatalogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CatalogEntry, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, catalogEntry(d))
	}
	return out
}

// ToolNames returns every registered name in catalog order.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, d := range r.order {
		out = append(out, d.Key())
	}
	return out
}

// Descriptors returns a copy of every descriptor in catalog order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.local[name]; ok {
		for _, d := range r.order {
			if d.Key() == name {
				return d, true
			}
		}
	}
	if d, ok := r.remote[name]; ok {
		return d, true
	}
	return nil, false
}

// taken reports whether name is already in use. Callers hold r.mu.
func (r *Registry) taken(name string) bool {
	if _, ok := r.local[name]; ok {
		return true
	}
	_, ok := r.remote[name]
	return ok
}

func (r *Registry) replaceInOrder(name string, d Descriptor) {
	for i, existing := range r.order {
		if existing.Key() == name {
			r.order[i] = d
			return
		}
	}
	r.order = append(r.order, d)
}

// rekeyRemote moves d from its bare name to its namespaced key, keeping its
// catalog position. Callers hold r.mu.
func (r *Registry) rekeyRemote(d RemoteDescriptor) {
	old := d.Name
	delete(r.remote, old)
	schema := r.schemas[old]
	delete(r.schemas, old)

	key := d.ServerName + NamespaceSeparator + d.ToolName
	if r.taken(key) {
		r.removeFromOrder(old)
		log.Warn().Str("server", d.ServerName).Str("tool", d.ToolName).Msg("Remote tool shadowed by local tool and dropped")
		return
	}

	d.Name = key
	r.remote[key] = d
	r.setSchema(key, schema)
	for i, existing := range r.order {
		if existing.Key() == old {
			r.order[i] = d
			break
		}
	}
	log.Warn().Str("server", d.ServerName).Str("tool", d.ToolName).Str("key", key).Msg("Remote tool re-keyed, local tool took its name")
}

func (r *Registry) removeFromOrder(name string) {
	for i, existing := range r.order {
		if existing.Key() == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Registry) setSchema(name string, schema *gojsonschema.Schema) {
	if schema == nil {
		delete(r.schemas, name)
		return
	}
	r.schemas[name] = schema
}

func (r *Registry) recordSizes() {
	observability.SetRegistryTools(len(r.local), len(r.remote))
}

// compileSchema returns nil for an empty or unusable schema; such tools are
// dispatched without validation.
func compileSchema(name string, schema map[string]any) *gojsonschema.Schema {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Ignoring invalid tool parameter schema")
		return nil
	}
	return compiled
}

func validateParams(name string, schema *gojsonschema.Schema, params map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return flowerr.Tool("toolregistry.validate", fmt.Sprintf("cannot validate parameters for tool '%s'", name), err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return flowerr.Tool("toolregistry.validate",
			fmt.Sprintf("invalid parameters for tool '%s': %s", name, strings.Join(problems, "; ")), nil)
	}
	return nil
}

func asToolError(name string, err error) error {
	if flowerr.KindOf(err) != "" {
		return err
	}
	return flowerr.Tool("toolregistry.execute", fmt.Sprintf("tool '%s' failed", name), err)
}
