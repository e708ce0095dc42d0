// Package bridge implements the external-process ingestion bridge: it
// spawns a sensor helper process (the Livox-style NDJSON bridge), ingests
// its output over exactly one transport (local UDP datagrams or the
// child's stdout), classifies each line as frame or stat/log, and fans
// frames out to live subscribers.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/sensorhub/internal/hub"
	"github.com/banshee-data/sensorhub/internal/monitoring"
)

const (
	// DefaultUDPListenPort is where the helper sends NDJSON datagrams
	// unless configured otherwise.
	DefaultUDPListenPort = 18080

	// DefaultMaxFrames and DefaultMaxStats bound the in-memory rings.
	DefaultMaxFrames = 60
	DefaultMaxStats  = 300

	// stopTimeout bounds the graceful-termination wait before the helper
	// process is killed.
	stopTimeout = 2 * time.Second

	// readDeadline is the UDP poll interval; it bounds how long the
	// ingestion loop can go without observing cancellation.
	readDeadline = 100 * time.Millisecond

	// configEnvVar carries the resolved config path into the helper.
	configEnvVar = "MID360_CONFIG_PATH"
)

// Options configures one Bridge instance.
type Options struct {
	SensorID      string
	Kind          string // default "lidar3d"
	Exe           string // helper executable path
	ConfigPath    string // multi-device JSON config, validated at New
	UseUDP        bool   // datagram transport; false selects stdout
	UDPListenPort int
	MaxFrames     int
	MaxStats      int
}

// Bridge owns at most one live helper process and its ingestion task. It
// implements hub.Adapter: under a supervisor its Run degrades to a
// heartbeat loop, while the data plane lives in the frame and stat rings.
type Bridge struct {
	opts   Options
	cfg    *Config
	frames *recordRing
	stats  *recordRing
	fanout *Fanout

	mu           sync.Mutex
	cmd          *exec.Cmd
	procExited   chan struct{}
	ingestCancel context.CancelFunc
	ingestDone   chan struct{}
}

// New validates the configuration file and constructs a stopped bridge.
// Invalid configuration fails here, before any resource is touched, so a
// misconfigured bridge can never be started.
func New(opts Options) (*Bridge, error) {
	if opts.SensorID == "" {
		return nil, fmt.Errorf("bridge requires a sensor id")
	}
	if opts.Exe == "" {
		return nil, fmt.Errorf("bridge requires a helper executable path")
	}
	if opts.Kind == "" {
		opts.Kind = "lidar3d"
	}
	if opts.UDPListenPort == 0 {
		opts.UDPListenPort = DefaultUDPListenPort
	}
	if opts.MaxFrames < 1 {
		opts.MaxFrames = DefaultMaxFrames
	}
	if opts.MaxStats < 1 {
		opts.MaxStats = DefaultMaxStats
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	return &Bridge{
		opts:   opts,
		cfg:    cfg,
		frames: newRecordRing(opts.MaxFrames),
		stats:  newRecordRing(opts.MaxStats),
		fanout: NewFanout(),
	}, nil
}

func (b *Bridge) SensorID() string { return b.sensorID() }
func (b *Bridge) Kind() string     { return b.opts.Kind }

func (b *Bridge) sensorID() string { return b.opts.SensorID }

// Config returns the validated device configuration.
func (b *Bridge) Config() *Config { return b.cfg }

// Fanout returns the broadcast fan-out for this bridge.
func (b *Bridge) Fanout() *Fanout { return b.fanout }

// Start launches the helper process and begins the ingestion task on the
// configured transport. Calling Start while a process handle is live is a
// no-op. A spawn failure is returned with the executable path; transport
// errors after spawn are handled inside the ingestion loop and never
// surface here.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cmd != nil {
		return nil
	}

	var args []string
	if !b.opts.UseUDP {
		args = append(args, "--stdout")
	}
	cmd := exec.Command(b.opts.Exe, args...)
	cmd.Env = append(os.Environ(), configEnvVar+"="+b.opts.ConfigPath)

	var pr, pw *os.File
	if !b.opts.UseUDP {
		var err error
		pr, pw, err = os.Pipe()
		if err != nil {
			return fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		// The helper logs to stderr; in stdout mode both streams carry
		// NDJSON through the classifier.
		cmd.Stdout = pw
		cmd.Stderr = pw
	}

	if err := cmd.Start(); err != nil {
		if pr != nil {
			pr.Close()
			pw.Close()
		}
		return fmt.Errorf("failed to launch bridge helper %s: %w", b.opts.Exe, err)
	}
	if pw != nil {
		// Child holds its own copy of the write end.
		pw.Close()
	}

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	ictx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.cmd = cmd
	b.procExited = exited
	b.ingestCancel = cancel
	b.ingestDone = done

	if b.opts.UseUDP {
		go func() {
			defer close(done)
			b.runUDP(ictx)
		}()
		monitoring.Logf("[Bridge] %s: helper pid=%d, ingesting on udp 127.0.0.1:%d", b.sensorID(), cmd.Process.Pid, b.opts.UDPListenPort)
	} else {
		go func() {
			defer close(done)
			defer pr.Close()
			b.runStdout(ictx, pr)
		}()
		monitoring.Logf("[Bridge] %s: helper pid=%d, ingesting on stdout", b.sensorID(), cmd.Process.Pid)
	}

	return nil
}

// Stop cancels the ingestion task, then terminates the helper process:
// interrupt first, kill after a bounded wait. The process handle is
// always cleared, even on an unclean exit, so the next Start can never
// double-spawn.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cmd := b.cmd
	exited := b.procExited
	cancel := b.ingestCancel
	done := b.ingestDone
	b.cmd = nil
	b.procExited = nil
	b.ingestCancel = nil
	b.ingestDone = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(stopTimeout):
			monitoring.Logf("[Bridge] %s: ingestion task did not stop within %v", b.sensorID(), stopTimeout)
		}
	}

	if cmd == nil || cmd.Process == nil {
		return
	}

	select {
	case <-exited:
		return
	default:
	}

	cmd.Process.Signal(os.Interrupt)
	select {
	case <-exited:
	case <-time.After(stopTimeout):
		monitoring.Logf("[Bridge] %s: helper ignored interrupt, killing pid=%d", b.sensorID(), cmd.Process.Pid)
		cmd.Process.Kill()
		select {
		case <-exited:
		case <-time.After(time.Second):
		}
	}
}

// Run implements hub.Adapter. The real work happens on the ingestion
// task; this loop is a heartbeat that ties the process lifetime to the
// supervisor's cancellation signal.
func (b *Bridge) Run(ctx context.Context, _ *hub.SampleBuffer) error {
	if err := b.Start(); err != nil {
		return err
	}
	defer b.Stop()

	ticker := time.NewTicker(readDeadline)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runUDP ingests NDJSON datagrams from the helper on the loopback
// listener. Read errors other than deadline timeouts are transient: they
// are logged and the loop retries on the next iteration.
func (b *Bridge) runUDP(ctx context.Context) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.opts.UDPListenPort})
	if err != nil {
		monitoring.Logf("[Bridge] %s: failed to bind udp 127.0.0.1:%d: %v", b.sensorID(), b.opts.UDPListenPort, err)
		return
	}
	defer conn.Close()

	buf := make([]byte, 65535)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			monitoring.Logf("[Bridge] %s: udp read error: %v", b.sensorID(), err)
			continue
		}
		b.processLine(string(buf[:n]))
	}
}

// runStdout ingests NDJSON lines from the helper's merged output pipe. A
// closed pipe (helper exited) idles until the ingestion task is
// cancelled rather than tearing anything down here.
func (b *Bridge) runStdout(ctx context.Context, pipe *os.File) {
	lineChan := make(chan string)
	go func() {
		defer close(lineChan)
		scan := bufio.NewScanner(pipe)
		scan.Buffer(make([]byte, 64*1024), 1024*1024)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lineChan:
			if !ok {
				<-ctx.Done()
				return
			}
			b.processLine(line)
		}
	}
}

// processLine classifies one NDJSON line. Undecodable lines become log
// entries in the stat ring and never reach subscribers; decoded records
// typed "frame" go to the frame ring and are broadcast synchronously,
// everything else goes to the stat ring.
func (b *Bridge) processLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		b.stats.append(map[string]any{
			"type": "log",
			"ts":   time.Now().UTC(),
			"msg":  line,
		})
		monitoring.BridgeStats.Inc()
		return
	}

	if t, _ := rec["type"].(string); t == "frame" {
		b.frames.append(rec)
		monitoring.BridgeFrames.Inc()
		b.fanout.Broadcast([]byte(line))
		return
	}

	b.stats.append(rec)
	monitoring.BridgeStats.Inc()
}

// LatestFrame returns the most recent frame record, or false if none has
// arrived yet.
func (b *Bridge) LatestFrame() (map[string]any, bool) {
	return b.frames.latest()
}

// RecentFrames returns up to count of the most recent frames, newest
// last.
func (b *Bridge) RecentFrames(count int) []map[string]any {
	return b.frames.recent(count)
}

// RecentStats returns up to count of the most recent stat/log records.
func (b *Bridge) RecentStats(count int) []map[string]any {
	return b.stats.recent(count)
}

// Info reports a non-blocking snapshot of bridge status.
func (b *Bridge) Info() map[string]any {
	transport := "stdout"
	if b.opts.UseUDP {
		transport = "udp"
	}

	running := false
	b.mu.Lock()
	if b.cmd != nil {
		select {
		case <-b.procExited:
		default:
			running = true
		}
	}
	b.mu.Unlock()

	return map[string]any{
		"sensor_id":       b.sensorID(),
		"config_path":     b.opts.ConfigPath,
		"transport":       transport,
		"udp_listen_port": b.opts.UDPListenPort,
		"frames_buffered": b.frames.len(),
		"stats_buffered":  b.stats.len(),
		"bridge_running":  running,
	}
}
