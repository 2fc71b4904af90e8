// Command triangle opens a window and draws a colored triangle through the
// vkframe frame loop. Without compiled shaders it still runs and only clears.
package main

//go:generate glslangValidator -V shaders/triangle.vert -o shaders/triangle.vert.spv
//go:generate glslangValidator -V shaders/triangle.frag -o shaders/triangle.frag.spv

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/andewx/vkframe"
	"github.com/andewx/vkframe/vkdevice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	vk "github.com/vulkan-go/vulkan"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func init() {
	// GLFW and the Vulkan surface must live on the main thread.
	runtime.LockOSThread()
}

var args struct {
	config  string
	metrics string
	debug   bool
	vert    string
	frag    string
	vsync   bool
	frames  int
}

func main() {
	flag.StringVar(&args.config, "config", "", "YAML config file")
	flag.StringVar(&args.metrics, "metrics", "", "serve prometheus metrics on this address, e.g. :9090")
	flag.BoolVar(&args.debug, "debug", false, "enable Vulkan validation layers")
	flag.StringVar(&args.vert, "vert", "shaders/triangle.vert.spv", "compiled vertex shader")
	flag.StringVar(&args.frag, "frag", "shaders/triangle.frag.spv", "compiled fragment shader")
	flag.BoolVar(&args.vsync, "vsync", false, "force FIFO presentation")
	flag.IntVar(&args.frames, "frames", 0, "frames in flight")
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "triangle: %+v\n", err)
		os.Exit(1)
	}
}

// flagUsage carries the flags the user actually set, so they override the
// config file and lose to the environment.
func flagUsage() *vkframe.Usage {
	usage := vkframe.NewUsage("flags", 2)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "vsync":
			usage.Bool_props["vsync"] = args.vsync
		case "frames":
			usage.Int_props["frames_in_flight"] = args.frames
		}
	})
	return usage
}

func run() (err error) {
	cfg, err := vkframe.LoadConfig(args.config, flagUsage())
	if err != nil {
		return err
	}
	logger, err := vkframe.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := vkframe.NewMetrics(reg)
	if args.metrics != "" {
		stop := serveMetrics(args.metrics, reg, logger)
		defer stop()
	}

	display, err := vkdevice.OpenDisplay(cfg.Window)
	if err != nil {
		return err
	}
	defer display.Close()

	opts := vkdevice.DefaultOptions()
	opts.AppName = cfg.Window.Title
	opts.Debug = args.debug
	opts.Depth = cfg.DepthAttachment
	opts.Logger = logger.Named("vulkan")
	device, err := vkdevice.Open(display, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, device.Close())
	}()

	pipeline, mesh, err := loadScene(device, logger)
	if err != nil {
		return err
	}
	defer mesh.Destroy()
	defer pipeline.Destroy()

	ctx, err := vkframe.NewContext(device, display, cfg,
		vkframe.WithLogger(logger),
		vkframe.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	renderer, err := vkframe.Initialize(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, renderer.Shutdown())
	}()
	display.OnResize(func(width, height int) {
		logger.Debug("framebuffer resized", zap.Int("width", width), zap.Int("height", height))
		renderer.RequestRebuild()
	})

	sig, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := renderer.Run(sig, pipeline, mesh); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// triangle is position (vec2) then color (vec3) per vertex.
var triangle = []float32{
	0.0, -0.5, 1.0, 0.0, 0.0,
	0.5, 0.5, 0.0, 1.0, 0.0,
	-0.5, 0.5, 0.0, 0.0, 1.0,
}

var triangleLayout = vkdevice.VertexLayout{
	Stride: 5 * 4,
	Attributes: []vkdevice.VertexAttribute{
		{Location: 0, Format: vk.FormatR32g32Sfloat, Offset: 0},
		{Location: 1, Format: vk.FormatR32g32b32Sfloat, Offset: 2 * 4},
	},
}

// loadScene builds the triangle pipeline and mesh. Missing shaders leave
// the pipeline nil and the frame loop only clears.
func loadScene(device *vkdevice.Device, logger *zap.Logger) (*vkdevice.Pipeline, *vkdevice.Mesh, error) {
	mesh, err := vkdevice.NewMesh(device, vkdevice.Float32Bytes(triangle), 3, []uint16{0, 1, 2})
	if err != nil {
		return nil, nil, err
	}
	shaders, err := vkdevice.LoadShaders(args.vert, args.frag)
	if err != nil {
		logger.Warn("shaders unavailable, clearing only", zap.Error(err))
		return nil, mesh, nil
	}
	pipeline, err := vkdevice.NewPipeline(device, shaders, triangleLayout)
	if err != nil {
		mesh.Destroy()
		return nil, nil, err
	}
	return pipeline, mesh, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
