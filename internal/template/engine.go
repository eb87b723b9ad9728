package template

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/rekcod/rekcod/internal/engine"
	"github.com/rekcod/rekcod/internal/env"
)

// InspectResult is what Docker.PsInspect returns to a template: the raw
// inspect payload and the node it was found on.
type InspectResult struct {
	Data interface{}
	Node string
}

// NodeLister is the subset of the node registry the template engine needs,
// kept narrow so this package doesn't import the node package's full API.
type NodeLister interface {
	AllOnlineEngines(ctx context.Context) map[string]*engine.Client
}

// dockerHelper backs the Docker.PsInspect template helper: it walks known
// online nodes and returns the first engine that answers the inspect call
// (§4.7). The render call stack stays synchronous; the helper itself blocks
// on the async engine call to completion on the calling goroutine, which is
// safe because render sites never hold the registry write lock (§5).
type dockerHelper struct {
	ctx   context.Context
	nodes NodeLister
}

func (d dockerHelper) PsInspect(containerID string) *InspectResult {
	if d.nodes == nil {
		return nil
	}
	for name, cli := range d.nodes.AllOnlineEngines(d.ctx) {
		data, err := cli.InspectContainer(d.ctx, containerID)
		if err != nil {
			continue
		}
		return &InspectResult{Data: data, Node: name}
	}
	return nil
}

// renderContext is the top-level namespace exposed to every template.
type renderContext struct {
	Value  interface{}
	Env    map[string]string
	Docker dockerHelper
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"default": func(fallback, value interface{}) interface{} {
			if value == nil {
				return fallback
			}
			if s, ok := value.(string); ok && s == "" {
				return fallback
			}
			return value
		},
	}
}

// Render parses and executes a single named template body against values
// (already-parsed YAML) and the global env store, with Docker.PsInspect
// wired to nodes.
func Render(ctx context.Context, name, body string, values interface{}, envStore *env.Store, nodes NodeLister) (string, error) {
	tmpl, err := template.New(name).Funcs(funcMap()).Parse(body)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}

	envVars, err := envStore.All(ctx)
	if err != nil {
		return "", fmt.Errorf("load env store: %w", err)
	}

	// A nil values document renders as an empty mapping, so .Value.<key>
	// yields no value (and "default" falls back) rather than a nil-pointer
	// execution error.
	if values == nil {
		values = map[string]interface{}{}
	}

	rc := renderContext{
		Value:  values,
		Env:    envVars,
		Docker: dockerHelper{ctx: ctx, nodes: nodes},
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rc); err != nil {
		return "", fmt.Errorf("execute template %q: %w", name, err)
	}
	return buf.String(), nil
}

// ParseValues parses a values YAML document. An empty document yields nil,
// matching "values: null" semantics for an empty deploy request.
func ParseValues(raw string) (interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out interface{}
	if err := yaml.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse values yaml: %w", err)
	}
	return out, nil
}

// RenderDynamic is the ad-hoc preview renderer (render_dynamic_tmpl): it
// renders arbitrary text against a values document without requiring a
// bundle, used by the template preview endpoint (§4.7, §6).
func RenderDynamic(ctx context.Context, text string, values interface{}, envStore *env.Store, nodes NodeLister) (string, error) {
	return Render(ctx, "dynamic", text, values, envStore, nodes)
}

// RenderBundle renders every file in b.Templates() against values, returning
// filename -> rendered text (§4.8 step 2).
func RenderBundle(ctx context.Context, b *Bundle, readFile func(name string) (string, error), values interface{}, envStore *env.Store, nodes NodeLister) (map[string]string, error) {
	out := make(map[string]string, len(b.Templates()))
	for _, name := range b.Templates() {
		body, err := readFile(name)
		if err != nil {
			return nil, fmt.Errorf("read template %q: %w", name, err)
		}
		rendered, err := Render(ctx, name, body, values, envStore, nodes)
		if err != nil {
			return nil, err
		}
		out[name] = rendered
	}
	return out, nil
}
