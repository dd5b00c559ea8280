// Command skyrouter-bench is an offline trace-replay harness for the
// router's main loop: it opens one simulated SiK interface over a real
// pseudo-terminal pair (so the SiK lifecycle open path runs unmodified
// against a live file descriptor), replays a trace of packets through
// the Rx thread, and reports the loop-duration statistics spec §4.8
// phase 8 tracks. Grounded on cmd/tnctest's offline two-TNC exercise
// shape, generalized from a live connected-mode session to a
// record/replay trace.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creack/pty"
	"github.com/spf13/pflag"

	"github.com/doismellburning/skyrouter/internal/model"
	"github.com/doismellburning/skyrouter/internal/packet"
	"github.com/doismellburning/skyrouter/internal/radiohal"
	"github.com/doismellburning/skyrouter/internal/router"
	"github.com/doismellburning/skyrouter/internal/rxthread"
	"github.com/doismellburning/skyrouter/internal/siklifecycle"
	"github.com/doismellburning/skyrouter/internal/txgateway"
)

func main() {
	tracePath := pflag.StringP("trace", "t", "", "Path to a recorded packet trace (header+payload frames back to back). Empty synthesizes one.")
	iterations := pflag.IntP("iterations", "n", 2000, "Number of RunOnce iterations to execute.")
	synthCount := pflag.IntP("synth-count", "s", 5000, "Number of synthetic telemetry packets when -trace is empty.")
	pflag.Parse()

	r, ptmx, err := buildBenchRouter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skyrouter-bench: %v\n", err)
		os.Exit(1)
	}
	defer ptmx.Close()

	frames, err := loadOrSynthesizeTrace(*tracePath, *synthCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skyrouter-bench: %v\n", err)
		os.Exit(1)
	}
	r.Rx.AddSource(traceInterfaceIndex, &traceSource{frames: frames})
	r.Rx.Start()
	defer r.Rx.Stop()

	ctx := context.Background()
	for i := 0; i < *iterations; i++ {
		start := time.Now()
		r.RunOnce(ctx)
		r.LoopStats.Observe(time.Since(start))
	}

	minMS, avgMS, maxMS := r.LoopStats.Global()
	fmt.Printf("iterations=%d frames_replayed=%d loop_ms_min=%.4f loop_ms_avg=%.4f loop_ms_max=%.4f dropped=%d\n",
		*iterations, len(frames), minMS, avgMS, maxMS, r.Tx.Dropped())
}

// traceInterfaceIndex is the synthetic source index the trace replay
// registers under; distinct from the one real pty-backed interface.
const traceInterfaceIndex = 99

// traceSource replays a fixed list of pre-marshaled packet frames, one
// per ReadFrame call, then reports no more data forever (rather than an
// error, so the Rx thread never marks it broken).
type traceSource struct {
	frames [][]byte
	pos    int
}

func (s *traceSource) ReadFrame(time.Time) ([]byte, error) {
	if s.pos >= len(s.frames) {
		return nil, nil
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// loadOrSynthesizeTrace reads length-prefixed packet frames from path,
// or synthesizes n TelemetryExtendedV3 frames if path is empty.
func loadOrSynthesizeTrace(path string, n int) ([][]byte, error) {
	if path == "" {
		return synthesizeTrace(n)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	var frames [][]byte
	for len(data) >= packet.HeaderLen {
		var h packet.Header
		if err := h.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("decode trace header: %w", err)
		}
		if int(h.TotalLength) > len(data) {
			break
		}
		frames = append(frames, data[:h.TotalLength])
		data = data[h.TotalLength:]
	}
	return frames, nil
}

func synthesizeTrace(n int) ([][]byte, error) {
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		payload, err := packet.TelemetryExtendedV3{
			VehicleID:  1,
			FlightMode: uint8(i % 8),
			BatteryMv:  12000,
		}.MarshalBinary()
		if err != nil {
			return nil, err
		}
		p := packet.Packet{
			Header: packet.Header{
				PacketFlags:  packet.Flag(packet.ComponentTelemetry),
				PacketType:   packet.TypeTelemetryExtendedV3,
				SequenceNum:  uint32(i),
				VehicleIDSrc: 1,
			},
			Payload: payload,
		}
		frame, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// buildBenchRouter wires a Router whose one radio interface is a
// SiK-class link over a real pty pair, so OpenAllInterfaces drives the
// genuine AT-command exchange (internal/radiohal.ATCodec) against a live
// file descriptor instead of a mock.
func buildBenchRouter() (*router.Router, *os.File, error) {
	ptmx, pts, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open pty: %w", err)
	}
	go echoATCommands(pts)

	hal := radiohal.New(
		func() ([]radiohal.Interface, error) {
			return []radiohal.Interface{{Index: 0, Kind: radiohal.KindSiK, DriverName: "bench0", Configurable: true, AssignedLinkID: 0}}, nil
		},
		func(string, int) (radiohal.SerialTransport, error) { return ptmxTransport{ptmx}, nil },
		radiohal.ATCodec{GuardDelay: 5 * time.Millisecond},
		radiohal.RawWifi{},
		func(int) string { return "bench0" },
	)
	if err := hal.Enumerate(); err != nil {
		return nil, nil, err
	}

	r := router.New(router.Config{
		VehicleIDSrc:    1,
		LinkLostTimeout: time.Minute,
		MaxLoopTimeMS:   5,
		LoopStatsWindow: time.Minute,
		IPCDrainEveryN:  0,
		HousekeepEveryN: 0,
	})
	r.HAL = hal
	r.Model = &model.VehicleModel{
		Links:      []model.RadioLinkConfig{{LinkID: 0, FrequencyKhz: 433000}},
		Interfaces: []model.RadioInterfaceConfig{{Index: 0, AssignedLinkID: 0}},
		Relay:      model.RelayConfig{IsRelayEnabledOnRadioLinkID: -1},
	}
	r.Rx = rxthread.New(rxthread.NewDupFilter(time.Second), 4096, time.Millisecond)
	r.Tx = txgateway.New()
	r.Sik = siklifecycle.New(func(int) {})
	router.RegisterDefaultHandlers(r)

	if err := r.OpenAllInterfaces(); err != nil {
		return nil, nil, fmt.Errorf("open bench interface: %w", err)
	}
	return r, ptmx, nil
}

// echoATCommands answers every AT command line with "OK\r\n", standing
// in for real SiK firmware on the other end of the pty pair.
func echoATCommands(pts *os.File) {
	defer pts.Close()
	scanner := bufio.NewScanner(pts)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "AT") {
			if _, err := pts.Write([]byte("OK\r\n")); err != nil {
				return
			}
		}
	}
}

// ptmxTransport adapts the pty master end into radiohal.SerialTransport.
type ptmxTransport struct {
	f *os.File
}

func (t ptmxTransport) Read(p []byte) (int, error)  { return t.f.Read(p) }
func (t ptmxTransport) Write(p []byte) (int, error) { return t.f.Write(p) }
func (t ptmxTransport) Close() error                { return nil }
func (t ptmxTransport) SetSpeed(int) error           { return nil }

var _ io.ReadWriteCloser = ptmxTransport{}
