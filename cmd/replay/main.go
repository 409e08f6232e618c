// Command replay wires a trace file, a device directory, and a running
// Engine together for manual exercises, mirroring the reference
// toolkit's cmd/ublk-mem entrypoint.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RedCarrottt/recordroid"
	"github.com/RedCarrottt/recordroid/internal/buffer"
	"github.com/RedCarrottt/recordroid/internal/logging"
)

// traceLine is one line of the newline-delimited JSON trace format this
// CLI accepts. The wire format is this repo's own invention (trace
// persistence is out of scope per §1), shaped directly after the Tuple
// kinds of §3 so a recorded run can be replayed without a real upstream
// orchestrator.
type traceLine struct {
	Kind string `json:"kind"` // "kernel" or "platform"
	TsUs int64  `json:"ts_us"`

	Device int    `json:"device,omitempty"`
	Type   uint16 `json:"type,omitempty"`
	Code   uint16 `json:"code,omitempty"`
	Value  int32  `json:"value,omitempty"`

	PEType         int32 `json:"pe_type,omitempty"`
	ResponseTimeUs int64 `json:"response_time_us,omitempty"`
	Priv           int64 `json:"priv,omitempty"`
	SecondPriv     int64 `json:"second_priv,omitempty"`
}

func main() {
	var (
		deviceDir = flag.String("device-dir", "/dev/input", "Directory scanned for event<N> devices")
		traceFile = flag.String("trace", "", "Newline-delimited JSON trace file to replay")
		logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		maxSleep  = flag.Int("max-sleep-ms", 0, "Cap on delegated long sleep in ms (0 = uncapped)")
	)
	flag.Parse()

	if *traceFile == "" {
		log.Fatal("-trace is required")
	}

	logConfig := logging.DefaultConfig()
	logConfig.Level = parseLevel(*logLevel)
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	trace, err := loadTrace(*traceFile)
	if err != nil {
		logger.Error("failed to load trace", "file", *traceFile, "err", err)
		os.Exit(1)
	}
	logger.Info("loaded trace", "file", *traceFile, "tuples", len(trace))

	cfg := recordroid.DefaultEngineConfig()
	cfg.DeviceDir = *deviceDir
	cfg.MaxSleepMs = *maxSleep
	cfg.Logger = logger

	cb := recordroid.Callbacks{
		DoLongSleep: func(ms int32) { time.Sleep(time.Duration(ms) * time.Millisecond) },
		DidUpdateReplayingFields: func(requiredSN, presentSN int64, cursor, size int32) {
			logger.Debug("progress", "requiredSN", requiredSN, "sn", presentSN, "cursor", cursor, "size", size)
		},
		CompletePoll: func(tvSec, tvUsec int64, deviceIndex, evType, code, value int32) {
			logger.Debug("poll", "tv_sec", tvSec, "tv_usec", tvUsec, "device", deviceIndex, "type", evType, "code", code, "value", value)
		},
	}

	engine, err := recordroid.NewEngine(cfg, cb)
	if err != nil {
		logger.Error("failed to create engine", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.Init()
	go feedTrace(engine, trace)

	logger.Info("replay starting", "tuples", len(trace))
	if err := engine.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("replay exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("replay finished")
}

// feedTrace admits the whole trace as a single final chunk, per the
// feeder interface of §4.3.
func feedTrace(engine *recordroid.Engine, trace []traceLine) {
	engine.BeginChunk(false, len(trace), 1)
	for _, line := range trace {
		switch line.Kind {
		case "kernel":
			engine.AppendKernel(buffer.Tuple{
				TimestampUs: line.TsUs,
				DeviceIndex: line.Device,
				Type:        line.Type,
				Code:        line.Code,
				Value:       line.Value,
			})
		case "platform":
			engine.AppendPlatform(buffer.Tuple{
				TimestampUs:    line.TsUs,
				PEType:         line.PEType,
				ResponseTimeUs: line.ResponseTimeUs,
				Priv:           line.Priv,
				SecondPriv:     line.SecondPriv,
			})
		}
	}
}

func loadTrace(path string) ([]traceLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []traceLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		var t traceLine
		if err := json.Unmarshal([]byte(text), &t); err != nil {
			return nil, fmt.Errorf("parsing trace line: %w", err)
		}
		lines = append(lines, t)
	}
	return lines, scanner.Err()
}

func parseLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
