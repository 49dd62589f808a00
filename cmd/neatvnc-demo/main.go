// Command neatvnc-demo wires the framebuffer, display aggregator and
// Tight encoder together around a small synthetic animation, the Go
// analogue of the original library's draw.c example: instead of a real
// RFB transport it just logs each encoded update's size, to exercise the
// pipeline end to end.
package main

import (
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jauntywunderkind/neatvnc/damage"
	"github.com/jauntywunderkind/neatvnc/display"
	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/config"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
	"github.com/jauntywunderkind/neatvnc/tight"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	width := flag.Int("width", 1280, "screen width in pixels")
	height := flag.Int("height", 720, "screen height in pixels")
	fps := flag.Float64("fps", 30, "animation frame rate")
	quality := flag.String("quality", "high", "tight encode quality: lossless, high or low")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg := &config.Config{
		Display: config.DisplayConfig{Width: *width, Height: *height},
		Encoder: config.EncoderConfig{Quality: *quality},
	}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	q, err := parseQuality(cfg.Encoder.Quality)
	if err != nil {
		logger.Error("invalid encoder quality", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := run(cfg, q, *fps, logger, sigCh); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
	logger.Info("demo stopped")
}

func parseQuality(s string) (tight.Quality, error) {
	switch s {
	case "", "lossless":
		return tight.QualityLossless, nil
	case "high":
		return tight.QualityHigh, nil
	case "low":
		return tight.QualityLow, nil
	default:
		return 0, fmt.Errorf("unknown quality %q", s)
	}
}

func run(cfg *config.Config, quality tight.Quality, fps float64, logger *slog.Logger, sigCh chan os.Signal) error {
	width, height := cfg.Display.Width, cfg.Display.Height
	sched := scheduler.NewLoop(32)
	go sched.Run()
	defer sched.Close()

	encoder := tight.New(sched, width, height)

	var framesIn, updatesOut int

	dpy := display.New(sched, 0, 0, func(buf *fb.FB, region damage.Region) {
		framesIn++
		err := encoder.EncodeFrame(buf, region, quality, func(out []byte, err error) {
			if err != nil {
				logger.Warn("encode failed", "error", err)
				return
			}
			updatesOut++
			logger.Debug("encoded update", "bytes", len(out), "rects_header_bytes", 2)
		})
		if err != nil && err != tight.ErrNoDamage {
			logger.Warn("encode frame rejected", "error", err)
		}
	}, nil)
	defer dpy.Unref()

	anim := newAnimation(width, height)
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	logger.Info("demo started", "width", width, "height", height, "fps", fps, "quality", cfg.Encoder.Quality)

	for {
		select {
		case <-sigCh:
			logger.Info("shutdown signal received")
			return nil
		case <-statsTicker.C:
			logger.Info("stats", "frames_in", framesIn, "updates_out", updatesOut)
		case <-ticker.C:
			buf, region := anim.step()
			dpy.FeedBuffer(buf, region)
		}
	}
}

// animation draws a bouncing box onto a fresh system-memory framebuffer
// every step, handing back only the rectangles that actually changed:
// the box's previous position (now blank) and its new one.
type animation struct {
	width, height int
	x, y          int
	dx, dy        int
	boxSize       int
}

func newAnimation(width, height int) *animation {
	return &animation{width: width, height: height, dx: 4, dy: 3, boxSize: 64}
}

func (a *animation) step() (*fb.FB, damage.Region) {
	buf, err := fb.New(uint32(a.width), uint32(a.height), pixfmt.XRGB8888)
	if err != nil {
		panic(err)
	}

	oldX, oldY := a.x, a.y
	a.x += a.dx
	a.y += a.dy
	if a.x < 0 || a.x+a.boxSize > a.width {
		a.dx = -a.dx
		a.x += a.dx
	}
	if a.y < 0 || a.y+a.boxSize > a.height {
		a.dy = -a.dy
		a.y += a.dy
	}

	pixels, _ := buf.Map()
	stride := a.width * 4
	for y := a.y; y < a.y+a.boxSize && y < a.height; y++ {
		for x := a.x; x < a.x+a.boxSize && x < a.width; x++ {
			off := y*stride + x*4
			pixels[off] = 0xff
			pixels[off+1] = 0xff
			pixels[off+2] = 0xff
		}
	}

	region := damage.Region{
		image.Rect(oldX, oldY, oldX+a.boxSize, oldY+a.boxSize),
		image.Rect(a.x, a.y, a.x+a.boxSize, a.y+a.boxSize),
	}
	return buf, region
}
