// Package docker is a thin wrapper over the Docker Engine API for the
// container actions exposed on the admin REST surface.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/sourcegraph/conc/pool"
)

// ErrNotFound is returned for an unknown container id or name.
var ErrNotFound = errors.New("container not found")

// Container is the listing view of one container.
type Container struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Image   string   `json:"image"`
	Status  string   `json:"status"`
	State   string   `json:"state"`
	Created int64    `json:"created"`
	Ports   []string `json:"ports"`
}

// Info summarises the daemon.
type Info struct {
	Version    string `json:"version"`
	Containers int    `json:"containers"`
	Images     int    `json:"images"`
	Running    int    `json:"running"`
}

// PruneReport is the outcome of Prune.
type PruneReport struct {
	Containers     int    `json:"containers"`
	Images         int    `json:"images"`
	Volumes        int    `json:"volumes"`
	SpaceReclaimed uint64 `json:"spaceReclaimed"`
	// Human is SpaceReclaimed formatted for display, e.g. "1.5GB".
	Human string `json:"spaceReclaimedHuman"`
}

// Client talks to the local Docker daemon.
type Client struct {
	api *dockerclient.Client
}

// New connects using the environment (DOCKER_HOST etc.), or host when set.
// No request is made until the first call.
func New(host string) (*Client, error) {
	opts := []dockerclient.Opt{dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}
	api, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{api: api}, nil
}

// Close releases the client's transport.
func (c *Client) Close() error { return c.api.Close() }

// Info reports the daemon version and object counts. An unreachable daemon
// yields version "N/A" and zero counts rather than an error.
func (c *Client) Info(ctx context.Context) Info {
	var (
		info    Info
		version string
	)
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		i, err := c.api.Info(ctx)
		if err != nil {
			return err
		}
		info = Info{Containers: i.Containers, Images: i.Images, Running: i.ContainersRunning}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		v, err := c.api.ServerVersion(ctx)
		if err != nil {
			return err
		}
		version = v.Version
		return nil
	})
	if err := p.Wait(); err != nil {
		log.Printf("[docker] info unavailable: %v", err)
		return Info{Version: "N/A"}
	}
	info.Version = version
	return info
}

// List returns all containers, running or not.
func (c *Client) List(ctx context.Context) ([]Container, error) {
	list, err := c.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers, is Docker running? %w", err)
	}
	out := make([]Container, 0, len(list))
	for _, s := range list {
		out = append(out, summarize(s))
	}
	return out, nil
}

func summarize(s container.Summary) Container {
	name := "unknown"
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	id := s.ID
	if len(id) > 12 {
		id = id[:12]
	}
	ports := make([]string, 0, len(s.Ports))
	for _, p := range s.Ports {
		if p.PublicPort != 0 {
			ports = append(ports, fmt.Sprintf("%d:%d/%s", p.PublicPort, p.PrivatePort, p.Type))
		} else {
			ports = append(ports, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
		}
	}
	return Container{
		ID:      id,
		Name:    name,
		Image:   s.Image,
		Status:  s.Status,
		State:   s.State,
		Created: s.Created,
		Ports:   ports,
	}
}

// Start starts a container.
func (c *Client) Start(ctx context.Context, id string) error {
	return wrap(c.api.ContainerStart(ctx, id, container.StartOptions{}), id)
}

// Stop stops a container with the daemon's default grace period.
func (c *Client) Stop(ctx context.Context, id string) error {
	return wrap(c.api.ContainerStop(ctx, id, container.StopOptions{}), id)
}

// Restart restarts a container.
func (c *Client) Restart(ctx context.Context, id string) error {
	return wrap(c.api.ContainerRestart(ctx, id, container.StopOptions{}), id)
}

// Logs returns the last tail lines of stdout and stderr, timestamped.
func (c *Client) Logs(ctx context.Context, id string, tail int) (string, error) {
	if tail <= 0 {
		tail = 100
	}
	rc, err := c.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", wrap(err, id)
	}
	defer rc.Close()

	inspect, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return "", wrap(err, id)
	}

	var buf bytes.Buffer
	if inspect.Config != nil && inspect.Config.Tty {
		_, err = buf.ReadFrom(rc)
	} else {
		// Non-tty logs are multiplexed; both streams go to one buffer in order.
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		return "", fmt.Errorf("read logs %s: %w", id, err)
	}
	return buf.String(), nil
}

// Prune removes stopped containers, dangling images and unused volumes.
func (c *Client) Prune(ctx context.Context) (PruneReport, error) {
	var rep PruneReport
	var containersSpace, imagesSpace, volumesSpace uint64

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		r, err := c.api.ContainersPrune(ctx, filters.NewArgs())
		if err != nil {
			return fmt.Errorf("prune containers: %w", err)
		}
		rep.Containers, containersSpace = len(r.ContainersDeleted), r.SpaceReclaimed
		return nil
	})
	p.Go(func(ctx context.Context) error {
		r, err := c.api.ImagesPrune(ctx, filters.NewArgs(filters.Arg("dangling", "true")))
		if err != nil {
			return fmt.Errorf("prune images: %w", err)
		}
		rep.Images, imagesSpace = len(r.ImagesDeleted), r.SpaceReclaimed
		return nil
	})
	p.Go(func(ctx context.Context) error {
		r, err := c.api.VolumesPrune(ctx, filters.NewArgs())
		if err != nil {
			return fmt.Errorf("prune volumes: %w", err)
		}
		rep.Volumes, volumesSpace = len(r.VolumesDeleted), r.SpaceReclaimed
		return nil
	})
	if err := p.Wait(); err != nil {
		return PruneReport{}, err
	}

	rep.SpaceReclaimed = containersSpace + imagesSpace + volumesSpace
	rep.Human = units.HumanSize(float64(rep.SpaceReclaimed))
	log.Printf("[docker] pruned %d containers, %d images, %d volumes (%s reclaimed)",
		rep.Containers, rep.Images, rep.Volumes, rep.Human)
	return rep, nil
}

func wrap(err error, id string) error {
	if err == nil {
		return nil
	}
	if dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("container %s: %w", id, err)
}
