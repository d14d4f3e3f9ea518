package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

const (
	dockerImage    = "browserless/chrome:latest"
	dockerCDPPort  = "3000/tcp"
	readyRetries   = 20
	readyRetryWait = 500 * time.Millisecond
)

// DockerLauncher runs each browser process in its own container and drives
// it over CDP. One container per engine keeps the single-owner model intact:
// retiring an instance removes its container.
type DockerLauncher struct {
	cli *client.Client

	once sync.Once
	pw   *playwright.Playwright
	err  error
}

func NewDockerLauncher() (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerLauncher{cli: cli}, nil
}

func (l *DockerLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		opts := &playwright.RunOptions{Verbose: false, Stdout: io.Discard, Stderr: io.Discard}
		if err := playwright.Install(opts); err != nil {
			l.err = fmt.Errorf("install playwright: %w", err)
			return
		}
		l.pw, l.err = playwright.Run(opts)
	})
	return l.pw, l.err
}

func (l *DockerLauncher) Launch(ctx context.Context) (Engine, error) {
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("browserpool-%s", uuid.NewString()[:8])

	containerConfig := &container.Config{
		Image: dockerImage,
		Labels: map[string]string{
			"managed-by": "browserpool",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
		},
		ExposedPorts: nat.PortSet{
			dockerCDPPort: struct{}{},
		},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			dockerCDPPort: []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: "0"},
			},
		},
		AutoRemove: false,
	}

	resp, err := l.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		l.removeContainer(resp.ID)
		return nil, fmt.Errorf("start container: %w", err)
	}

	inspect, err := l.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		l.removeContainer(resp.ID)
		return nil, fmt.Errorf("inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[dockerCDPPort]
	if len(bindings) == 0 {
		l.removeContainer(resp.ID)
		return nil, fmt.Errorf("container %s exposed no CDP port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := waitForCDP(ctx, port); err != nil {
		l.removeContainer(resp.ID)
		return nil, fmt.Errorf("browser not ready: %w", err)
	}

	browser, err := pw.Chromium.ConnectOverCDP(fmt.Sprintf("ws://localhost:%s", port))
	if err != nil {
		l.removeContainer(resp.ID)
		return nil, fmt.Errorf("connect over CDP: %w", err)
	}

	return &dockerEngine{
		pwEngine:    pwEngine{browser: browser},
		launcher:    l,
		containerID: resp.ID,
	}, nil
}

func (l *DockerLauncher) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := 10
	_ = l.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	_ = l.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (l *DockerLauncher) Close() error {
	return l.cli.Close()
}

// waitForCDP polls the DevTools version endpoint until the browser accepts
// connections.
func waitForCDP(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	for i := 0; i < readyRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(readyRetryWait)
	}
	return fmt.Errorf("CDP endpoint did not become ready after %d attempts", readyRetries)
}

type dockerEngine struct {
	pwEngine
	launcher    *DockerLauncher
	containerID string
}

func (e *dockerEngine) Close() error {
	err := e.pwEngine.Close()
	e.launcher.removeContainer(e.containerID)
	return err
}
