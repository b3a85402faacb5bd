package roles

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"allsky/internal/logging"
	"allsky/internal/telemetry"
	"allsky/internal/worker"
	"allsky/internal/workqueue"
)

// maxCaptureFailures consecutive failed exposures end the generation so the
// supervisor starts a fresh one.
const maxCaptureFailures = 3

type capture struct {
	env      worker.Env
	logger   *slog.Logger
	command  string
	interval time.Duration
	timeout  time.Duration
	imageDir string
	failures int
}

func newCapture(env worker.Env) (worker.Runner, error) {
	c := &capture{env: env, logger: env.Logger}
	c.reload()
	return c, nil
}

func (c *capture) reload() {
	cfg := c.env.Config()
	c.command = strings.TrimSpace(cfg.Capture.Command)
	c.interval = cfg.CaptureInterval()
	c.timeout = cfg.CaptureTimeout()
	c.imageDir = cfg.Paths.ImageDir
}

func (c *capture) Run(ctx context.Context) error {
	c.logger.Info("Capture worker started", logging.String("command", c.command))
	next := time.Now()
	for {
		if c.command == "" {
			msg, err := c.env.In.Get(ctx)
			if err != nil {
				return err
			}
			if stop, err := c.handle(msg); stop || err != nil {
				return err
			}
			continue
		}

		msg, ok, err := getWithin(ctx, c.env.In, time.Until(next))
		if err != nil {
			return err
		}
		if ok {
			if stop, err := c.handle(msg); stop || err != nil {
				return err
			}
			continue
		}

		next = time.Now().Add(c.interval)
		if err := c.expose(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.failures++
			c.logger.Error("Capture failed",
				logging.Error(err),
				logging.Int("consecutive_failures", c.failures),
				logging.String(logging.FieldEventType, "capture_failed"),
				logging.String(logging.FieldErrorHint, "check capture.command and the camera connection"),
			)
			if c.failures >= maxCaptureFailures {
				return fmt.Errorf("capture failed %d times in a row: %w", c.failures, err)
			}
			continue
		}
		c.failures = 0
	}
}

func (c *capture) handle(msg workqueue.Message) (bool, error) {
	switch msg.Kind {
	case workqueue.KindStop:
		c.logger.Info("Capture worker received stop")
		return true, nil
	case workqueue.KindReload:
		c.reload()
		c.logger.Info("Capture worker reloaded configuration")
	case workqueue.KindSetTime:
		if c.env.TimeOffset != nil {
			c.env.TimeOffset.Store(int64(msg.TimeOffset))
		}
		c.logger.Warn(fmt.Sprintf("Set time offset: %ds", msg.TimeOffset))
	default:
		c.logger.Warn("Capture worker ignoring message", logging.String("kind", msg.Kind.String()))
	}
	return false, nil
}

func (c *capture) now() time.Time {
	now := time.Now()
	if c.env.TimeOffset != nil {
		now = now.Add(time.Duration(c.env.TimeOffset.Load()) * time.Second)
	}
	return now
}

func (c *capture) expose(ctx context.Context) error {
	capturedAt := c.now()
	output, err := c.env.Alarm.Command(ctx, c.timeout, c.command, c.imageDir)
	if err != nil {
		return err
	}
	reading := parseReading(string(output))
	c.env.Registers.Update(reading.apply)

	if reading.image == "" {
		c.logger.Debug("Capture produced no image")
		return nil
	}
	path := reading.image
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.imageDir, path)
	}
	c.env.Queues.Image.Put(workqueue.ImageMessage(workqueue.ImageJob{
		Path:       path,
		CapturedAt: capturedAt,
		Exposure:   c.env.Registers.Exposure(),
	}))
	c.logger.Info("Captured frame", logging.String("path", path))
	return nil
}

// captureReading is what a capture command reported on stdout.
type captureReading struct {
	image  string
	floats map[string]float64
	ints   map[string]int
}

// parseReading reads key=value lines. Unknown keys and malformed values are
// ignored.
func parseReading(output string) captureReading {
	reading := captureReading{floats: map[string]float64{}, ints: map[string]int{}}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "image":
			reading.image = value
		case "exposure", "temp", "ra", "dec":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				reading.floats[key] = f
			}
		case "gain", "bin", "night", "moonmode":
			if n, err := strconv.Atoi(value); err == nil {
				reading.ints[key] = n
			}
		}
	}
	return reading
}

func (r captureReading) apply(v *telemetry.Values) {
	for key, f := range r.floats {
		switch key {
		case "exposure":
			v.Exposure = f
		case "temp":
			v.SensorTemp = f
		case "ra":
			v.RA = f
		case "dec":
			v.Dec = f
		}
	}
	for key, n := range r.ints {
		switch key {
		case "gain":
			v.Gain = n
		case "bin":
			v.Bin = n
		case "night":
			v.Night = n
		case "moonmode":
			v.MoonMode = n
		}
	}
}
