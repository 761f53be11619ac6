package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/shehryarbajwa/giftcard-mini/internal/poll"
)

const (
	DefaultImage = "browserless/chrome:latest"

	browserlessPort = "3000/tcp"
	managedByLabel  = "giftcard-mini"
)

// Container is a running browserless container.
type Container struct {
	ID         string
	Port       string
	ConnectURL string
	ProfileDir string
}

// HTTPEndpoint is the container's DevTools HTTP address.
func (c *Container) HTTPEndpoint() string {
	return fmt.Sprintf("http://localhost:%s", c.Port)
}

// PoolOptions configures the docker-hosted browser.
type PoolOptions struct {
	Image      string
	ProfileDir string
	// Sessions caps concurrent sessions inside the container.
	Sessions int
	// ReadyTimeout bounds the wait for the DevTools endpoint after start.
	ReadyTimeout time.Duration
}

// Pool runs one shared browserless container and reuses it while it stays
// healthy.
type Pool struct {
	client   *client.Client
	opts     PoolOptions
	resolver *EndpointResolver
	logger   *slog.Logger

	mu      sync.Mutex
	current *Container
}

// NewPool creates a pool talking to the docker daemon from the environment.
func NewPool(opts PoolOptions, resolver *EndpointResolver, logger *slog.Logger) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if opts.Image == "" {
		opts.Image = DefaultImage
	}
	if opts.Sessions < 1 {
		opts.Sessions = 1
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		client:   cli,
		opts:     opts,
		resolver: resolver,
		logger:   logger,
	}, nil
}

// Ensure returns the running container, starting a new one when there is
// none or the previous one stopped.
func (p *Pool) Ensure(ctx context.Context) (*Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		if p.IsHealthy(ctx, p.current.ID) {
			return p.current, nil
		}
		p.logger.WarnContext(ctx, "browser container unhealthy, replacing", "container_id", p.current.ID)
		if err := p.stop(ctx, p.current.ID); err != nil {
			p.logger.WarnContext(ctx, "failed to remove unhealthy container", "container_id", p.current.ID, "error", err)
		}
		p.current = nil
	}

	if err := p.EnsureImage(ctx); err != nil {
		return nil, err
	}

	c, err := p.launch(ctx)
	if err != nil {
		return nil, err
	}
	p.current = c
	p.logger.InfoContext(ctx, "browser container started", "container_id", c.ID, "port", c.Port)
	return c, nil
}

func (p *Pool) launch(ctx context.Context) (*Container, error) {
	profileDir := p.opts.ProfileDir
	if profileDir == "" {
		profileDir = filepath.Join(os.TempDir(), "giftcard-profiles")
	}
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	containerConfig := &container.Config{
		Image: p.opts.Image,
		Labels: map[string]string{
			"managed-by": managedByLabel,
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=" + strconv.Itoa(p.opts.Sessions),
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			browserlessPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			browserlessPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: "0"},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: profileDir,
				Target: "/data",
			},
		},
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = p.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		_ = p.stop(ctx, resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[browserlessPort]
	if len(bindings) == 0 {
		_ = p.stop(ctx, resp.ID)
		return nil, fmt.Errorf("container %s exposes no port", resp.ID)
	}
	port := bindings[0].HostPort

	c := &Container{
		ID:         resp.ID,
		Port:       port,
		ConnectURL: fmt.Sprintf("ws://localhost:%s", port),
		ProfileDir: profileDir,
	}

	if err := p.waitForBrowserReady(ctx, c); err != nil {
		_ = p.stop(ctx, resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}
	return c, nil
}

// Stop stops and removes the shared container if one is running.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	id := p.current.ID
	p.current = nil
	return p.stop(ctx, id)
}

func (p *Pool) stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// IsHealthy reports whether the container is running.
func (p *Pool) IsHealthy(ctx context.Context, containerID string) bool {
	inspect, err := p.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State != nil && inspect.State.Running
}

// EnsureImage pulls the browser image unless it is already present.
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.opts.Image {
				return nil
			}
		}
	}

	p.logger.InfoContext(ctx, "pulling browser image", "image", p.opts.Image)
	reader, err := p.client.ImagePull(ctx, p.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client. It does not stop the container.
func (p *Pool) Close() error {
	return p.client.Close()
}

// waitForBrowserReady polls /json/version until the browser answers.
func (p *Pool) waitForBrowserReady(ctx context.Context, c *Container) error {
	_, err := poll.Until(ctx, poll.Options{Timeout: p.opts.ReadyTimeout, Interval: 500 * time.Millisecond},
		func(ctx context.Context) (struct{}, bool, error) {
			return struct{}{}, p.resolver.Ready(ctx, c.HTTPEndpoint()), nil
		})
	return err
}
