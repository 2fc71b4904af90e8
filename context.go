package vkframe

import (
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Context carries everything the frame loop components share. It replaces
// process globals: two contexts never see each other's state.
type Context struct {
	Device  Device
	Surface Surface
	Config  Config
	Logger  *zap.Logger
	Metrics *Metrics
}

// ContextOption customizes a Context built by NewContext.
type ContextOption func(*Context)

// WithLogger sets the context logger. The default discards everything.
func WithLogger(logger *zap.Logger) ContextOption {
	return func(c *Context) {
		c.Logger = logger
	}
}

// WithMetrics sets the context collectors. The default records nothing.
func WithMetrics(metrics *Metrics) ContextOption {
	return func(c *Context) {
		c.Metrics = metrics
	}
}

// NewContext validates cfg and binds it to the device and surface.
func NewContext(device Device, surface Surface, cfg Config, opts ...ContextOption) (*Context, error) {
	if device == nil {
		return nil, pkgerrors.New("nil device")
	}
	if surface == nil {
		return nil, pkgerrors.New("nil surface")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx := &Context{
		Device:  device,
		Surface: surface,
		Config:  cfg,
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if ctx.Logger == nil {
		ctx.Logger = zap.NewNop()
	}
	return ctx, nil
}
