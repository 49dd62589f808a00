// Package h264 implements the hardware-accelerated H.264 encoder: a
// FIFO-queued, single-worker pipeline built on GStreamer/VAAPI. At most
// one frame is ever in flight; frames that arrive while the encoder is
// busy queue up and are encoded in submission order once the current
// job finishes.
package h264

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/jauntywunderkind/neatvnc/fb"
	"github.com/jauntywunderkind/neatvnc/internal/pixfmt"
	"github.com/jauntywunderkind/neatvnc/internal/scheduler"
)

// Acceleration selects which GStreamer element family encodes frames.
type Acceleration int

const (
	AccelAuto Acceleration = iota
	AccelVAAPI
	AccelSoftware
)

// Config describes the encoder's fixed target: dimensions and pixel
// format never change over an Encoder's lifetime without a Reconfigure.
type Config struct {
	Width, Height uint32
	Format        pixfmt.FourCC
	Acceleration  Acceleration
}

// PacketFunc receives one encoded Annex-B access unit. keyframe reports
// whether a key unit was forced for this frame by RequestKeyframe; it is
// false for frames the encoder made IDR on its own.
type PacketFunc func(data []byte, keyframe bool)

// Encoder wraps a GStreamer pipeline with the queue/keyframe-latch
// discipline described in the package doc.
type Encoder struct {
	sched     scheduler.Scheduler
	onPacket  PacketFunc
	cfg       Config
	usingVAAPI bool

	pipeline *gst.Pipeline
	appsrc   *app.Source
	appsink  *app.Sink

	queue   []*fb.FB
	current *fb.FB

	nextKeyframe bool
}

// Create builds and starts a GStreamer pipeline for cfg.
//
// Pipeline structure (VAAPI):
//
//	appsrc → videoconvert → capsfilter(NV12) → vaapih264enc → h264parse → appsink
//
// Pipeline structure (software fallback):
//
//	appsrc → videoconvert → capsfilter(NV12) → x264enc → h264parse → appsink
func Create(sched scheduler.Scheduler, cfg Config, onPacket PacketFunc) (*Encoder, error) {
	gst.Init(nil)

	e := &Encoder{sched: sched, onPacket: onPacket, cfg: cfg}
	if err := e.buildPipeline(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Encoder) buildPipeline() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("h264: failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("h264: failed to create appsrc: %w", err)
	}
	src.SetProperty("is-live", true)
	src.SetProperty("format", int(gst.FormatTime))
	srcCaps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=BGRx,width=%d,height=%d,framerate=0/1",
		e.cfg.Width, e.cfg.Height,
	))
	src.SetProperty("caps", srcCaps)

	var encoder *gst.Element
	usingVAAPI := false

	if e.cfg.Acceleration != AccelSoftware {
		encoder, err = gst.NewElement("vaapih264enc")
		if err == nil {
			encoder.SetProperty("rate-control", 1) // CQP: constant quality
			encoder.SetProperty("keyframe-period", int(^uint32(0)>>1))
			usingVAAPI = true
		} else if e.cfg.Acceleration == AccelVAAPI {
			return fmt.Errorf("h264: vaapih264enc required but unavailable: %w", err)
		} else {
			slog.Warn("h264: vaapih264enc unavailable, falling back to software x264enc", "error", err)
		}
	}

	if !usingVAAPI {
		encoder, err = gst.NewElement("x264enc")
		if err != nil {
			return fmt.Errorf("h264: failed to create x264enc: %w", err)
		}
		encoder.SetProperty("tune", 0x4) // zerolatency
		encoder.SetProperty("key-int-max", int(^uint32(0)>>1))
		encoder.SetProperty("byte-stream", true)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("h264: failed to create videoconvert: %w", err)
	}

	vaapiCaps, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("h264: failed to create capsfilter: %w", err)
	}
	nv12 := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=NV12,width=%d,height=%d", e.cfg.Width, e.cfg.Height,
	))
	vaapiCaps.SetProperty("caps", nv12)

	parser, err := gst.NewElement("h264parse")
	if err != nil {
		return fmt.Errorf("h264: failed to create h264parse: %w", err)
	}
	parser.SetProperty("config-interval", -1)

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("h264: failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("emit-signals", false)

	pipeline.AddMany(src.Element, converter, vaapiCaps, encoder, parser, sink.Element)
	if err := gst.ElementLinkMany(src.Element, converter, vaapiCaps, encoder, parser, sink.Element); err != nil {
		return fmt.Errorf("h264: failed to link pipeline: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("h264: failed to start pipeline: %w", err)
	}

	e.pipeline = pipeline
	e.appsrc = src
	e.appsink = sink
	e.usingVAAPI = usingVAAPI
	return nil
}

// RequestKeyframe latches a forced IDR for the next frame the encoder
// dequeues, regardless of how many frames are already queued ahead of
// it.
func (e *Encoder) RequestKeyframe() {
	e.sched.PostMain(func() { e.nextKeyframe = true })
}

// Feed enqueues buf for encoding. buf is Ref'd and Hold'd; both are
// released once it has been encoded (or dropped because the encoder was
// destroyed first).
func (e *Encoder) Feed(buf *fb.FB) {
	buf.Ref()
	buf.Hold()
	e.sched.PostMain(func() {
		e.queue = append(e.queue, buf)
		e.scheduleWork()
	})
}

// scheduleWork starts encoding the next queued frame, unless a frame is
// already in flight. Must only be called from the main loop.
func (e *Encoder) scheduleWork() {
	if e.current != nil || len(e.queue) == 0 {
		return
	}
	e.current = e.queue[0]
	e.queue = e.queue[1:]

	isKeyframe := e.nextKeyframe
	e.nextKeyframe = false

	buf := e.current
	var packet []byte
	var workErr error

	e.sched.SpawnWorker(func() {
		packet, workErr = e.encode(buf, isKeyframe)
	}, func() {
		e.onWorkDone(packet, isKeyframe, workErr)
	})
}

func (e *Encoder) encode(buf *fb.FB, keyframe bool) ([]byte, error) {
	pixels, err := buf.Map()
	if err != nil {
		return nil, fmt.Errorf("h264: %w", err)
	}

	gbuf := gst.NewBufferWithSize(int64(len(pixels)))
	gbuf.Map(gst.MapWrite).Bytes()
	gbuf.Fill(0, pixels)

	if keyframe {
		e.appsrc.Element.SendEvent(gst.NewCustomEvent(gst.EventTypeCustomDownstream,
			gst.NewStructure("GstForceKeyUnit")))
	}

	if ret := e.appsrc.PushBuffer(gbuf); ret != gst.FlowOK {
		return nil, fmt.Errorf("h264: appsrc push failed: %v", ret)
	}

	sample := e.appsink.PullSample()
	if sample == nil {
		return nil, fmt.Errorf("h264: appsink returned no sample")
	}
	sampleBuf := sample.GetBuffer()
	if sampleBuf == nil {
		return nil, fmt.Errorf("h264: sample had no buffer")
	}
	mapInfo := sampleBuf.Map(gst.MapRead)
	defer sampleBuf.Unmap()
	data := mapInfo.Bytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// onWorkDone runs on the main loop: releases the just-encoded frame,
// delivers its packet (if any — an encode failure is logged and the
// frame silently dropped rather than propagated as a fatal error), and
// immediately schedules the next queued frame so encode order matches
// submission order with no gaps.
func (e *Encoder) onWorkDone(packet []byte, keyframe bool, err error) {
	buf := e.current
	e.current = nil

	buf.Release()
	buf.Unref()

	if err != nil {
		slog.Warn("h264: packet dropped", "reason", err)
	} else if e.onPacket != nil {
		e.onPacket(packet, keyframe)
	}

	e.scheduleWork()
}

// Reconfigure tears down and rebuilds the pipeline for a new target
// size/format, matching the source's behaviour of recreating the codec
// context whenever a fed frame's dimensions change.
func (e *Encoder) Reconfigure(cfg Config) error {
	e.Destroy()
	e.cfg = cfg
	e.queue = nil
	e.current = nil
	return e.buildPipeline()
}

// Destroy stops the pipeline and releases all GStreamer resources.
func (e *Encoder) Destroy() {
	if e.pipeline == nil {
		return
	}
	for _, buf := range e.queue {
		buf.Release()
		buf.Unref()
	}
	e.queue = nil
	if e.current != nil {
		e.current.Release()
		e.current.Unref()
		e.current = nil
	}
	e.pipeline.SetState(gst.StateNull)
	e.pipeline = nil
}
