package job

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/brane-run/brane/wir"
)

// AddressResolver resolves a location to its job service's dial address,
// backed in production by registry.Client's capabilities cache
// (SPEC_FULL.md §4.7).
type AddressResolver interface {
	JobAddress(ctx context.Context, loc wir.Location) (string, error)
}

// Dialer caches one *grpc.ClientConn per job service address, shared across
// every session's Client so repeated launches to the same location reuse a
// connection instead of paying a fresh dial each time.
type Dialer struct {
	Resolver AddressResolver

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewDialer builds a Dialer resolving addresses through resolver.
func NewDialer(resolver AddressResolver) *Dialer {
	return &Dialer{Resolver: resolver, conns: map[string]*grpc.ClientConn{}}
}

func (d *Dialer) dial(ctx context.Context, loc wir.Location) (*grpc.ClientConn, error) {
	addr, err := d.Resolver.JobAddress(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("job: resolving job address for %s: %w", loc, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if conn, ok := d.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("job: dialing %s: %w", addr, err)
	}
	d.conns[addr] = conn
	return conn, nil
}

// Client is the vm.JobClient adapter for one session (spec.md §4.8: "VM
// <-> job" RPC). vm.JobClient.Launch carries no task/app identity beyond
// the task itself, so Client derives a stable TaskID by hashing the task
// definition, its resolved inputs, and call-site metadata — the same
// launch retried by vm.run.withRetry hashes to the same key, satisfying
// Launch's (task_id, app_id) idempotency contract (spec.md §6).
type Client struct {
	Dialer *Dialer
	AppID  string
}

// Launch implements vm.JobClient.
func (c *Client) Launch(ctx context.Context, loc wir.Location, task wir.TaskDef, inputs map[string]wir.Value, meta wir.Metadata) (wir.Value, error) {
	conn, err := c.Dialer.dial(ctx, loc)
	if err != nil {
		return wir.Value{}, err
	}
	taskID, err := launchKey(task, inputs, meta)
	if err != nil {
		return wir.Value{}, err
	}

	req := &LaunchRequest{TaskID: taskID, AppID: c.AppID, Task: task, Inputs: inputs, Meta: meta}
	var resp LaunchResponse
	if err := conn.Invoke(ctx, "/"+serviceName+"/Launch", req, &resp); err != nil {
		return wir.Value{}, fmt.Errorf("job: launching %s at %s: %w", task.Name, loc, err)
	}
	if resp.Error != "" {
		return wir.Value{}, fmt.Errorf("job: %s failed: %s", task.Name, resp.Error)
	}
	return resp.Value, nil
}

func launchKey(task wir.TaskDef, inputs map[string]wir.Value, meta wir.Metadata) (string, error) {
	data, err := json.Marshal(struct {
		Task   wir.TaskDef
		Inputs map[string]wir.Value
		Meta   wir.Metadata
	}{task, inputs, meta})
	if err != nil {
		return "", fmt.Errorf("job: hashing launch key: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
