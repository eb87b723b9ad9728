// Package deploy implements the deployer (C10): render -> stream ->
// compose-up pipeline that materializes an application template bundle on a
// chosen node.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rekcod/rekcod/internal/env"
	"github.com/rekcod/rekcod/internal/kvs"
	"github.com/rekcod/rekcod/internal/node"
	"github.com/rekcod/rekcod/internal/template"
)

const module = "app"

// Request is the deploy operation's input (§4.8).
type Request struct {
	Name     string
	AppName  string
	NodeName string
	Project  string
	Values   string
	Build    bool
}

// Info is the persisted AppDeployInfo record (§3).
type Info struct {
	Name     string `json:"name"`
	NodeName string `json:"node_name"`
	Values   string `json:"values"`
	Project  string `json:"project,omitempty"`
	Build    bool   `json:"build"`
}

// Deployer orchestrates deploys against a node registry, template store,
// and global env store, persisting AppDeployInfo into the KVS store.
type Deployer struct {
	store     *kvs.Store
	registry  *node.Registry
	templates *template.Store
	env       *env.Store

	readFile func(bundle, name string) (string, error)
}

// New builds a Deployer. readFile reads a bundle's template file by
// basename; tests may substitute a fake.
func New(store *kvs.Store, registry *node.Registry, templates *template.Store, envStore *env.Store, readFile func(bundle, name string) (string, error)) *Deployer {
	return &Deployer{store: store, registry: registry, templates: templates, env: envStore, readFile: readFile}
}

// Deploy runs the procedure of §4.8, emitting log lines on logs as it goes.
func (d *Deployer) Deploy(ctx context.Context, req Request, logs chan<- string) error {
	defer close(logs)

	prior, err := d.loadInfo(ctx, req.Name)
	if err != nil {
		return err
	}

	if prior != nil && prior.NodeName != req.NodeName {
		if err := d.stopPrior(ctx, req.Name, prior.NodeName, logs); err != nil {
			logs <- fmt.Sprintf("warning: failed to stop %s on node %s: %v", req.Name, prior.NodeName, err)
		}
	}

	values, err := template.ParseValues(req.Values)
	if err != nil {
		return fmt.Errorf("parse values: %w", err)
	}

	bundle := d.templates.Get(req.AppName)
	if bundle == nil {
		return fmt.Errorf("unknown app template %q", req.AppName)
	}

	rendered, err := template.RenderBundle(ctx, bundle, func(name string) (string, error) {
		return d.readFile(req.AppName, name)
	}, values, d.env, d.registry)
	if err != nil {
		return fmt.Errorf("render bundle %q: %w", req.AppName, err)
	}

	composeText, composeName, err := pickComposeFile(rendered)
	if err != nil {
		return err
	}

	state, err := d.registry.GetNode(ctx, req.NodeName)
	if err != nil || state == nil {
		return fmt.Errorf("resolve node %q: %w", req.NodeName, err)
	}

	projectDir := req.Project
	if projectDir == "" {
		projectDir = bundle.ProjectDir()
	}

	if err := runComposeUp(ctx, state, composeText, req.Build, projectDir); err != nil {
		return fmt.Errorf("compose up %q: %w", composeName, err)
	}
	logs <- fmt.Sprintf("deployed %s (app %s) on node %s", req.Name, req.AppName, req.NodeName)

	info := Info{Name: req.Name, NodeName: req.NodeName, Values: req.Values, Project: req.Project, Build: req.Build}
	if err := d.saveInfo(ctx, info, prior == nil); err != nil {
		return fmt.Errorf("persist deploy info: %w", err)
	}

	return nil
}

// Delete removes a deployment's KVS row. Orphaned containers on the remote
// engine are the operator's responsibility (§4.8).
func (d *Deployer) Delete(ctx context.Context, name string) error {
	if err := d.store.Delete(ctx, module, &name, nil, nil); err != nil {
		return fmt.Errorf("delete deploy %q: %w", name, err)
	}
	return nil
}

func (d *Deployer) stopPrior(ctx context.Context, name, priorNode string, logs chan<- string) error {
	state, err := d.registry.GetNode(ctx, priorNode)
	if err != nil || state == nil {
		return fmt.Errorf("resolve prior node %q: %w", priorNode, err)
	}
	if err := state.Engine.RemoveContainer(ctx, name, true); err != nil {
		return err
	}
	logs <- fmt.Sprintf("stop app %s on node %s", name, priorNode)
	return nil
}

func (d *Deployer) loadInfo(ctx context.Context, name string) (*Info, error) {
	row, err := d.store.SelectOne(ctx, module, &name, nil, nil)
	if err != nil {
		if err == kvs.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load deploy info %q: %w", name, err)
	}
	var info Info
	if err := json.Unmarshal([]byte(row.Value), &info); err != nil {
		return nil, fmt.Errorf("decode deploy info %q: %w", name, err)
	}
	return &info, nil
}

// saveInfo persists info's KVS row. For a brand-new deployment (isNew) it
// inserts rather than upserts, so that two concurrent first-deploys of the
// same name surface as a conflict instead of one silently clobbering the
// other's compose project.
func (d *Deployer) saveInfo(ctx context.Context, info Info, isNew bool) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	row := kvs.Row{Module: module, Key: info.Name, Value: string(data)}
	if !isNew {
		return d.store.InsertOrUpdate(ctx, row)
	}
	if err := d.store.Insert(ctx, row); err != nil {
		if kvs.IsUniqueViolation(err) {
			return fmt.Errorf("deployment %q was created concurrently: %w", info.Name, err)
		}
		return err
	}
	return nil
}

// pickComposeFile finds the rendered docker-compose.* file among a bundle's
// rendered outputs.
func pickComposeFile(rendered map[string]string) (text, name string, err error) {
	for n, body := range rendered {
		if strings.HasPrefix(strings.ToLower(n), "docker-compose.") {
			return body, n, nil
		}
	}
	return "", "", fmt.Errorf("bundle has no docker-compose.* template")
}

// runComposeUp spawns `docker compose` (falling back to `docker-compose`),
// piping the rendered compose file to stdin, with DOCKER_HOST pointed at the
// node's engine proxy (§4.8 step 4).
func runComposeUp(ctx context.Context, state *node.State, composeText string, build bool, projectDir string) error {
	binary, baseArgs, err := resolveComposeBinary(ctx)
	if err != nil {
		return err
	}

	args := append(append([]string{}, baseArgs...), "-f", "-", "up", "-d")
	if build {
		args = append(args, "--build")
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = strings.NewReader(composeText)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("DOCKER_HOST=tcp://%s:%d/proxy.docker", state.Node.IP, state.Node.Port),
		fmt.Sprintf("DOCKER_CUSTOM_HEADERS=X-REKCOD-TOKEN=%s", state.Node.Token),
		"DOCKER_BUILDKIT=0",
	)
	if projectDir != "" {
		cmd.Dir = projectDir
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}

// resolveComposeBinary probes `docker compose` then `docker-compose`,
// failing the deploy if neither exists (§4.8 "Binary discovery").
func resolveComposeBinary(ctx context.Context) (binary string, baseArgs []string, err error) {
	if _, lookErr := exec.LookPath("docker"); lookErr == nil {
		probe := exec.CommandContext(ctx, "docker", "compose", "version")
		if probe.Run() == nil {
			return "docker", []string{"compose"}, nil
		}
	}
	if _, lookErr := exec.LookPath("docker-compose"); lookErr == nil {
		return "docker-compose", nil, nil
	}
	return "", nil, fmt.Errorf("neither %q nor %q is available", "docker compose", "docker-compose")
}
