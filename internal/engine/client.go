// Package engine wraps the container-engine HTTP API (Docker Engine) behind
// a typed client, with every request routed through a node's agent proxy and
// authenticated by the shared bearer token (§4.2).
package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

const (
	controlTimeout = 40 * time.Second
)

// Client is a shared, thread-safe handle onto one node's engine. It must
// never be cloned per request (§9): the transport's connection pool is the
// resource being shared.
type Client struct {
	docker  *client.Client
	baseURL string
}

// New builds a Client targeting http://<ip>:<port> on the node's agent,
// proxying every request through /proxy.docker with the shared token
// attached. MaxIdleConnsPerHost is negative, which disables idle pooling (0
// would mean net/http's default of 2): exec/attach hijacking requires a fresh
// connection per upgrade, never one recycled from the pool.
func New(ip string, port int, token string) (*Client, error) {
	baseURL := fmt.Sprintf("http://%s:%d", ip, port)

	transport := &http.Transport{
		MaxIdleConnsPerHost:   -1,
		IdleConnTimeout:       30 * time.Second,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		ExpectContinueTimeout: 1 * time.Second,
	}

	httpClient := &http.Client{
		Transport: newProxyTransport(transport, token),
		Timeout:   0, // streaming calls manage their own deadlines via context
	}

	cli, err := client.NewClientWithOpts(
		client.WithHost(baseURL),
		client.WithHTTPClient(httpClient),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine client: %w", err)
	}

	return &Client{docker: cli, baseURL: baseURL}, nil
}

// Close closes the docker client. Its HTTP transport is the proxyTransport
// wrapper, not an *http.Transport, so no pooled connections are closed here;
// New keeps none idle.
func (c *Client) Close() error {
	return c.docker.Close()
}

func controlCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, controlTimeout)
}

// Info reports the engine's system info.
func (c *Client) Info(ctx context.Context) (system.Info, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.Info(ctx)
}

// ListContainers lists containers matching the given filter arguments.
func (c *Client) ListContainers(ctx context.Context, f filters.Args) ([]types.Container, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
}

// InspectContainer returns the full container record.
func (c *Client) InspectContainer(ctx context.Context, id string) (types.ContainerJSON, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerInspect(ctx, id)
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerStart(ctx, id, container.StartOptions{})
}

// StopContainer stops a running container with the engine's default grace
// period.
func (c *Client) StopContainer(ctx context.Context, id string) error {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerStop(ctx, id, container.StopOptions{})
}

// RestartContainer restarts a container.
func (c *Client) RestartContainer(ctx context.Context, id string) error {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerRestart(ctx, id, container.StopOptions{})
}

// RemoveContainer removes a container, optionally forcing removal of a
// running one (used by the deployer when switching a deployment's node,
// §4.8 step 1).
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
}

// ContainerLogs streams combined stdout/stderr for a container. The caller
// owns and must close the returned reader.
func (c *Client) ContainerLogs(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error) {
	return c.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       tail,
	})
}

// ListImages lists images matching the filter.
func (c *Client) ListImages(ctx context.Context, f filters.Args) ([]image.Summary, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ImageList(ctx, image.ListOptions{Filters: f})
}

// CreateImage pulls an image by reference, streaming pull progress. The
// caller owns and must close the returned reader.
func (c *Client) CreateImage(ctx context.Context, from string) (io.ReadCloser, error) {
	return c.docker.ImageCreate(ctx, from, image.CreateOptions{})
}

// ExportImage streams a tarball of one or more images. The caller owns and
// must close the returned reader.
func (c *Client) ExportImage(ctx context.Context, id string) (io.ReadCloser, error) {
	return c.docker.ImageSave(ctx, []string{id})
}

// ImportImageStream loads an image tarball produced by ExportImage,
// streaming load progress back.
func (c *Client) ImportImageStream(ctx context.Context, stream io.Reader) (io.ReadCloser, error) {
	resp, err := c.docker.ImageLoad(ctx, stream, false)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CreateExec allocates an exec session attached to a TTY shell.
func (c *Client) CreateExec(ctx context.Context, id string, cmd []string) (string, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	resp, err := c.docker.ContainerExecCreate(ctx, id, types.ExecConfig{
		Cmd:          cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// StartExec hijacks the connection for an exec session, returning the
// duplex byte stream the exec terminal (§4.9) reads and writes.
func (c *Client) StartExec(ctx context.Context, execID string) (types.HijackedResponse, error) {
	return c.docker.ContainerExecAttach(ctx, execID, types.ExecStartCheck{Tty: true})
}

// ResizeExec resizes the pseudo-TTY backing an exec session.
func (c *Client) ResizeExec(ctx context.Context, execID string, height, width uint) error {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.ContainerExecResize(ctx, execID, container.ResizeOptions{Height: height, Width: width})
}

// ListNetworks lists the engine's networks.
func (c *Client) ListNetworks(ctx context.Context) ([]network.Inspect, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.NetworkList(ctx, network.ListOptions{})
}

// ListVolumes lists the engine's volumes.
func (c *Client) ListVolumes(ctx context.Context) (volume.ListResponse, error) {
	ctx, cancel := controlCtx(ctx)
	defer cancel()
	return c.docker.VolumeList(ctx, volume.ListOptions{})
}

// Events streams engine events between since and until. Either bound may be
// zero to mean "unbounded".
func (c *Client) Events(ctx context.Context, since, until time.Time) (<-chan events.Message, <-chan error) {
	opts := events.ListOptions{}
	if !since.IsZero() {
		opts.Since = since.Format(time.RFC3339Nano)
	}
	if !until.IsZero() {
		opts.Until = until.Format(time.RFC3339Nano)
	}
	return c.docker.Events(ctx, opts)
}
