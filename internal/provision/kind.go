package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/specialistvlad/pipegrid/internal/ctxlog"
	"github.com/specialistvlad/pipegrid/internal/executor"
	"github.com/specialistvlad/pipegrid/internal/pipeline"
)

// ClusterExportVar is the environment variable clusters export the discovered
// control-plane address under, for consumption by later steps.
const ClusterExportVar = "CLUSTER_NODE_ADDR"

// defaultClusterWait bounds cluster creation when the spec gives no wait.
const defaultClusterWait = 5 * time.Minute

// ContainerInspector is the slice of the Docker API the provisioner needs to
// discover a cluster's network identity.
type ContainerInspector interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// KindProvisioner creates ephemeral Kubernetes-in-Docker clusters through the
// kind CLI and discovers the control-plane container address through the
// Docker API.
//
// Options understood on the resource spec:
//
//	name     cluster name (default: the resource instance name)
//	config   path to a kind cluster config file
//	wait     readiness bound passed to kind, e.g. "5m"
type KindProvisioner struct {
	runner executor.CommandRunner

	dockerOnce sync.Once
	docker     ContainerInspector
	dockerErr  error
}

// NewKindProvisioner returns a cluster provisioner using the given command
// runner and Docker client. A nil docker client is created lazily from the
// environment on first acquisition, so runs without cluster resources never
// touch the Docker socket.
func NewKindProvisioner(runner executor.CommandRunner, docker ContainerInspector) *KindProvisioner {
	p := &KindProvisioner{runner: runner}
	if docker != nil {
		p.dockerOnce.Do(func() { p.docker = docker })
	}
	return p
}

func (p *KindProvisioner) inspector() (ContainerInspector, error) {
	p.dockerOnce.Do(func() {
		cli, err := NewDockerClient()
		if err != nil {
			p.dockerErr = err
			return
		}
		p.docker = cli
	})
	if p.dockerErr != nil {
		return nil, fmt.Errorf("docker client unavailable: %w", p.dockerErr)
	}
	return p.docker, nil
}

// NewDockerClient builds the default Docker API client from the environment.
func NewDockerClient() (*client.Client, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// Acquire implements Provisioner.
func (p *KindProvisioner) Acquire(ctx context.Context, spec pipeline.ResourceSpec) (Resource, error) {
	logger := ctxlog.FromContext(ctx)

	name := spec.Options["name"]
	if name == "" {
		name = spec.Name
	}
	wait := spec.Options["wait"]
	if wait == "" {
		wait = defaultClusterWait.String()
	}

	args := []string{"create", "cluster", "--name", name, "--wait", wait}
	if cfg := spec.Options["config"]; cfg != "" {
		args = append(args, "--config", cfg)
	}

	result, err := p.runner.Run(ctx, executor.CommandSpec{Path: "kind", Args: args})
	if err != nil {
		return nil, fmt.Errorf("kind create: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("kind create exited with code %d: %s", result.ExitCode, result.Stderr)
	}
	logger.Debug("Cluster created.", "cluster", name, "duration", result.Duration)

	addr, err := p.discoverAddress(ctx, name)
	if err != nil {
		// The cluster exists but is unusable; tear it down here since the
		// caller never receives a Resource to release.
		p.deleteCluster(ctx, name)
		return nil, err
	}
	logger.Info("Cluster address discovered.", "cluster", name, "addr", addr)

	return &kindCluster{provisioner: p, name: name, addr: addr}, nil
}

// discoverAddress inspects the control-plane container and returns its IP on
// the kind network.
func (p *KindProvisioner) discoverAddress(ctx context.Context, cluster string) (string, error) {
	docker, err := p.inspector()
	if err != nil {
		return "", err
	}
	container := cluster + "-control-plane"
	info, err := docker.ContainerInspect(ctx, container)
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s: %w", container, err)
	}
	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s has no network settings", container)
	}
	if net, ok := info.NetworkSettings.Networks["kind"]; ok && net.IPAddress != "" {
		return net.IPAddress, nil
	}
	// Fall back to whichever network the container landed on.
	for _, net := range info.NetworkSettings.Networks {
		if net.IPAddress != "" {
			return net.IPAddress, nil
		}
	}
	return "", fmt.Errorf("container %s has no IP address", container)
}

func (p *KindProvisioner) deleteCluster(ctx context.Context, name string) error {
	result, err := p.runner.Run(ctx, executor.CommandSpec{
		Path: "kind",
		Args: []string{"delete", "cluster", "--name", name},
	})
	if err != nil {
		return fmt.Errorf("kind delete: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("kind delete exited with code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

// kindCluster is the provisioned cluster handle.
type kindCluster struct {
	provisioner *KindProvisioner
	name        string
	addr        string
}

func (c *kindCluster) Name() string { return c.name }

func (c *kindCluster) Env() map[string]string {
	return map[string]string{ClusterExportVar: c.addr}
}

func (c *kindCluster) Release(ctx context.Context) error {
	return c.provisioner.deleteCluster(ctx, c.name)
}
