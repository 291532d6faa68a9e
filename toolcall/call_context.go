// Package toolcall carries per-call metadata on the context for log
// correlation across the dispatch pipeline.
package toolcall

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// CallContext identifies a single logical tool invocation.
type CallContext interface {
	GetCallID() string
	GetToolName() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type callContext struct {
	callID   string
	toolName string
	metadata sync.Map
	appData  any
}

func (c *callContext) GetCallID() string {
	return c.callID
}

func (c *callContext) GetToolName() string {
	return c.toolName
}

func (c *callContext) AppData() any {
	return c.appData
}

func (c *callContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *callContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewCallContext creates a CallContext, generating a call ID when empty.
func NewCallContext(callID, toolName string, appData any) CallContext {
	return &callContext{
		callID:   values.StringsCoalesce(callID, NewCallID()),
		toolName: toolName,
		appData:  appData,
		metadata: sync.Map{},
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithCallContext returns a new context with CallContext value
func WithCallContext(ctx context.Context, callCtx CallContext) context.Context {
	return context.WithValue(ctx, keyContext, callCtx)
}

// GetCallContext retrieves the CallContext from the context
func GetCallContext(ctx context.Context) CallContext {
	if v, ok := ctx.Value(keyContext).(CallContext); ok {
		return v
	}
	return nil
}

// GetCallID retrieves the call ID from the provided context.
// If the context does not contain a CallContext, it returns an empty string.
func GetCallID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(CallContext); ok {
		return v.GetCallID()
	}
	return ""
}

// NewCallID generates a new call ID using the flake ID generator.
func NewCallID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
