package memclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"MemHarness/internal/embedding"
	"MemHarness/internal/logging"
	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
)

// Handle owns one freshly provisioned memory instance. Release must be called
// exactly once when the caller is done with it; later calls are no-ops.
type Handle struct {
	Client  Client
	release func() error
	done    bool
}

// Release closes the client and frees the instance's storage.
func (h *Handle) Release() error {
	if h == nil || h.done {
		return nil
	}
	h.done = true
	return h.release()
}

// Provisioner allocates isolated, empty memory instances for one access path.
// scope names the measurement point or QA item the instance belongs to.
type Provisioner interface {
	Path() timing.Path
	Provision(ctx context.Context, scope string) (*Handle, error)
}

// EmbeddedProvisioner roots every instance in a new temporary directory.
type EmbeddedProvisioner struct {
	// BaseDir is the parent of the temporary roots. Empty means os.TempDir.
	BaseDir  string
	Index    string
	Embedder embedding.Provider
}

func (p *EmbeddedProvisioner) Path() timing.Path { return timing.Embedded }

func (p *EmbeddedProvisioner) Provision(ctx context.Context, scope string) (*Handle, error) {
	if p.BaseDir != "" {
		if err := os.MkdirAll(p.BaseDir, 0o755); err != nil {
			return nil, &ResourceError{Op: "create", Path: p.BaseDir, Err: err}
		}
	}
	dir, err := os.MkdirTemp(p.BaseDir, "memharness-"+sanitize(scope)+"-")
	if err != nil {
		return nil, &ResourceError{Op: "create", Path: p.BaseDir, Err: err}
	}
	engine, err := memory.Open(memory.Options{Dir: dir, Index: p.Index, Embedder: p.Embedder})
	if err != nil {
		os.RemoveAll(dir)
		return nil, &ResourceError{Op: "open", Path: dir, Err: err}
	}
	logging.Logger.Debug("provisioned embedded instance", "scope", scope, "dir", dir)

	client := NewEmbedded(engine)
	return &Handle{
		Client: client,
		release: func() error {
			closeErr := client.Close()
			if err := os.RemoveAll(dir); err != nil {
				return &ResourceError{Op: "remove", Path: dir, Err: err}
			}
			return closeErr
		},
	}, nil
}

// NetworkProvisioner binds every instance to a unique server-side user id.
type NetworkProvisioner struct {
	Options NetworkOptions
	// Prefix starts every generated user id.
	Prefix string
}

func (p *NetworkProvisioner) Path() timing.Path { return timing.Network }

// Provision returns a client for a new user id of the form
// <prefix>-<scope>-<8 hex chars>.
func (p *NetworkProvisioner) Provision(ctx context.Context, scope string) (*Handle, error) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = "memharness"
	}
	opts := p.Options
	opts.UserID = fmt.Sprintf("%s-%s-%s", prefix, sanitize(scope), uuid.NewString()[:8])

	client, err := NewNetwork(opts)
	if err != nil {
		return nil, err
	}
	logging.Logger.Debug("provisioned network instance", "scope", scope, "user_id", opts.UserID)

	return &Handle{
		Client: client,
		release: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return errors.Join(client.DeleteUser(ctx), client.Close())
		},
	}, nil
}

func sanitize(scope string) string {
	scope = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, scope)
	if scope == "" {
		return "x"
	}
	if len(scope) > 48 {
		scope = scope[:48]
	}
	return scope
}
