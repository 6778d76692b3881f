// Package channel defines the contract shared by the RPC surfaces the agent
// exposes: ordinal-argument commands, caller-scoped event streams and the
// error taxonomy reported back to clients.
package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"github.com/bytedance/sonic"
)

// Caller identifies the remote connection issuing a call or listen
type Caller struct {
	ConnectionID    string
	RemoteAuthority string
}

// Transformer returns the address translator bound to this caller
func (c Caller) Transformer() uri.Transformer {
	return uri.NewTransformer(c.RemoteAuthority)
}

// ServerChannel is one named RPC surface
type ServerChannel interface {
	// Call executes command with ordinal args
	Call(ctx context.Context, caller Caller, command string, args Args) (interface{}, error)

	// Listen attaches a listener for event. Events are delivered on the
	// returned channel until ctx is cancelled, after which it is closed.
	Listen(ctx context.Context, caller Caller, event string, args Args) (<-chan interface{}, error)
}

// Args holds positional call arguments as undecoded JSON
type Args []json.RawMessage

// NewArgs encodes values as positional arguments
func NewArgs(values ...interface{}) (Args, error) {
	args := make(Args, len(values))
	for i, v := range values {
		data, err := sonic.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		args[i] = data
	}
	return args, nil
}

// Decode decodes the argument at position i into v
func (a Args) Decode(i int, v interface{}) error {
	if i >= len(a) {
		return fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	if err := sonic.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("%w: argument %d: %v", ErrInvalidArgument, i, err)
	}
	return nil
}

// DecodeOptional decodes the argument at position i into v when present
// and not null
func (a Args) DecodeOptional(i int, v interface{}) error {
	if i >= len(a) || string(a[i]) == "null" {
		return nil
	}
	return a.Decode(i, v)
}
