// Command dualstreamd is a demo daemon that builds a StreamManager
// against an in-memory sensor and image pipeline, opens it, requests
// the configured video and still buffers, and then serves Prometheus
// metrics over HTTP. It has no interactive command loop and issues no
// queue, stream or capture operations of its own.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/gocapture/dualstream"
	"github.com/gocapture/dualstream/config"
	"github.com/gocapture/dualstream/imagedata"
	"github.com/gocapture/dualstream/metrics"
	"github.com/gocapture/dualstream/sensorctl"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "dualstreamd",
		Short: "Run the dualstream demo capture daemon",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)
	collector := metrics.New()

	sensor, pipeline := newDemoSensor()

	mgr, err := dualstream.NewStreamManager(cfg.DevicePath, sensor, pipeline, nil, log, collector)
	if err != nil {
		return fmt.Errorf("construct stream manager: %w", err)
	}

	if err := mgr.Open(); err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer mgr.Close()

	if err := mgr.RequestBuffers(dualstream.StreamVideo, cfg.Video.BufferCount, parseMode(cfg.Video.Mode)); err != nil {
		return fmt.Errorf("request video buffers: %w", err)
	}
	if err := mgr.RequestBuffers(dualstream.StreamStill, cfg.Still.BufferCount, parseMode(cfg.Still.Mode)); err != nil {
		return fmt.Errorf("request still buffers: %w", err)
	}

	log.Info("dualstreamd ready", "device", cfg.DevicePath, "metrics_addr", cfg.MetricsAddr)

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	log.Info("serving metrics", "addr", cfg.MetricsAddr)
	return srv.ListenAndServe()
}

func parseMode(s string) dualstream.Mode {
	if s == "fifo" {
		return dualstream.ModeFifo
	}
	return dualstream.ModeRing
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// newDemoSensor wires a small single-format sensor and pipeline
// mock so the daemon runs end-to-end without hardware.
func newDemoSensor() (sensorctl.SensorCtl, imagedata.ImageData) {
	const yuyv uint32 = 0x56595559 // "YUYV"

	formats := []sensorctl.FormatDesc{
		{PixFormat: sensorctl.PixFormat{Main: yuyv}, Description: "YUYV 4:2:2"},
	}
	sizeRange := sensorctl.FrameSizeRange{
		Type:     sensorctl.SizeStepwise,
		Stepwise: sensorctl.Stepwise{MinWidth: 160, MaxWidth: 1920, StepWidth: 16, MinHeight: 120, MaxHeight: 1080, StepHeight: 16},
	}

	sensor := sensorctl.NewMock(formats, map[uint32][]sensorctl.FrameSizeRange{yuyv: {sizeRange}})
	_ = sensor.SetFormat(sensorctl.PixFormat{Main: yuyv}, 1280, 720)

	pipeline := imagedata.NewMock(map[uint32]bool{yuyv: true}, map[uint32]sensorctl.FrameSizeRange{yuyv: sizeRange})
	return sensor, pipeline
}
