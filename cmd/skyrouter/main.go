// Command skyrouter is the vehicle-side radio router's entry point: it
// loads the router and vehicle-model configuration, builds the radio
// HAL and its production collaborators, opens every configured
// interface, and runs the main dispatch loop until interrupted. The
// startup sequencing mirrors the teacher's cmd/direwolf/main.go (parse
// flags, open hardware, install a signal handler, run the main loop)
// generalized from audio-channel config to this router's radio/model
// config.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/skyrouter/internal/diag"
	"github.com/doismellburning/skyrouter/internal/ipcmux"
	"github.com/doismellburning/skyrouter/internal/model"
	"github.com/doismellburning/skyrouter/internal/osctl"
	"github.com/doismellburning/skyrouter/internal/radiohal"
	"github.com/doismellburning/skyrouter/internal/reinit"
	"github.com/doismellburning/skyrouter/internal/router"
	"github.com/doismellburning/skyrouter/internal/rxthread"
	"github.com/doismellburning/skyrouter/internal/shmem"
	"github.com/doismellburning/skyrouter/internal/siklifecycle"
	"github.com/doismellburning/skyrouter/internal/txgateway"
)

func main() {
	showVersion := pflag.BoolP("version", "v", false, "Print version and exit.")
	verbose := pflag.BoolP("verbose-version", "V", false, "Include full build info with --version.")
	configPath := pflag.StringP("config-file", "c", "/etc/skyrouter/router.yaml", "Router configuration file.")

	// pflag would read the single-dash "-ver" as the shorthands -v -e -r,
	// so the legacy spelling is handled before parsing.
	for _, arg := range os.Args[1:] {
		if arg == "-ver" {
			printVersion(false)
			return
		}
	}
	pflag.Parse()

	if *showVersion {
		printVersion(*verbose)
		return
	}

	cfg, err := model.LoadRouterConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skyrouter: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	vehicleModel, err := model.Load(cfg.VehicleModelPath)
	if err != nil {
		logger.Fatal("load vehicle model", "err", err)
	}

	hal := buildHAL()
	if err := hal.Enumerate(); err != nil {
		logger.Error("enumerate radios", "err", err)
	}

	exec := &osctl.Linux{RebootChip: cfg.RebootGPIOChip, RebootOffset: cfg.RebootGPIOOffset}

	r := router.New(router.Config{
		VehicleIDSrc:    cfg.VehicleIDSrc,
		LinkLostTimeout: time.Duration(cfg.LinkLostTimeoutMS) * time.Millisecond,
		MaxLoopTimeMS:   cfg.MaxLoopTimeMS,
		LoopStatsWindow: time.Duration(cfg.LoopStatsWindowS) * time.Second,
		IPCDrainEveryN:  cfg.IPCDrainEveryN,
		HousekeepEveryN: cfg.HousekeepEveryN,
		Concatenate:     cfg.Concatenate,
	})
	r.HAL = hal
	r.Model = vehicleModel
	r.Exec = exec
	r.Logger = logger
	r.Rx = rxthread.New(rxthread.NewDupFilter(time.Second), 256, time.Millisecond)
	r.Rx.OnBroken = func(interfaceIndex int) {
		logger.Warn("radio interface marked broken, reinit will run on the next health check", "interface", interfaceIndex)
	}
	r.Tx = txgateway.New()
	r.Tx.Concatenate = cfg.Concatenate
	r.Sik = siklifecycle.New(func(brokenInterface int) {
		logger.Error("sik interface failed past reinit-all escalation", "interface", brokenInterface)
	})
	router.RegisterDefaultHandlers(r)

	openShmemStores(r, cfg, logger)

	r.Reinit = &reinit.Reinitializer{
		Exec: exec,
		Heartbeat: func() {
			if r.Watchdog != nil {
				r.Watchdog.SetPhase("reinit")
			}
		},
		CloseAll:      func(context.Context) error { return r.CloseAllInterfaces() },
		EnumerateHAL:  func(context.Context) error { return hal.Enumerate() },
		ReopenAll:     func(context.Context) error { return r.OpenAllInterfaces() },
		Broadcast: func(context.Context) error {
			logger.Info("radio reinitialized")
			return nil
		},
	}

	if err := r.OpenAllInterfaces(); err != nil {
		logger.Error("open radio interfaces", "err", err)
	}
	r.Rx.Start()

	r.IPC = dialIPCPeers(cfg.IPCChannelPaths, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if advertiser := startDiagAdvertise(ctx, cfg, logger); advertiser != nil {
		defer advertiser.Stop()
	}

	logger.Info("skyrouter starting", "version", skyrouterVersion, "interfaces", hal.Count())
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("router exited", "err", err)
	}

	r.Rx.Stop()
	if err := r.CloseAllInterfaces(); err != nil {
		logger.Warn("close radio interfaces", "err", err)
	}
}

// buildHAL wires the production radio HAL: udev enumeration, raw serial
// transport for SiK radios, the best-effort AT-command codec, and raw
// AF_PACKET WiFi transport (spec §4.1). devicePath is a closure over hal
// itself since New needs it before hal exists.
func buildHAL() *radiohal.HAL {
	var hal *radiohal.HAL
	devicePath := func(i int) string {
		info, err := hal.Info(i)
		if err != nil {
			return ""
		}
		return info.DriverName
	}
	hal = radiohal.New(radiohal.UdevEnumerate, radiohal.OpenSerial, radiohal.ATCodec{}, radiohal.RawWifi{}, devicePath)
	return hal
}

func newLogger(cfg *model.RouterConfig) *log.Logger {
	out := os.Stderr
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			logger := log.NewWithOptions(f, log.Options{ReportTimestamp: true})
			logger.SetLevel(parseLogLevel(cfg.LogLevel))
			return logger
		}
	}
	logger := log.NewWithOptions(out, log.Options{ReportTimestamp: true})
	logger.SetLevel(parseLogLevel(cfg.LogLevel))
	return logger
}

func parseLogLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// startDiagAdvertise advertises the diagnostics endpoint over mDNS when
// cfg.DiagPort is configured (spec §4.1's diagnostics surface), so a
// technician's laptop can find the router without a fixed IP. Returns
// nil if diagnostics are disabled or the advertisement fails to start.
func startDiagAdvertise(ctx context.Context, cfg *model.RouterConfig, logger *log.Logger) *diag.Advertiser {
	if cfg.DiagPort == 0 {
		return nil
	}
	advertiser, err := diag.Advertise(ctx, diag.DefaultServiceName(), cfg.DiagPort)
	if err != nil {
		logger.Warn("advertise diagnostics over mdns", "err", err)
		return nil
	}
	return advertiser
}

// openShmemStores maps the configured shared-memory paths onto the
// Router's RadioStats/LoopCounters/Watchdog surfaces (spec §3/§6). A
// store that fails to open is logged and left nil; the corresponding
// housekeeping step then simply skips mirroring.
func openShmemStores(r *router.Router, cfg *model.RouterConfig, logger *log.Logger) {
	if cfg.RadioStatsPath != "" {
		if store, err := shmem.OpenStore(cfg.RadioStatsPath, 4096); err == nil {
			r.RadioStatsStore = store
		} else {
			logger.Warn("open radio stats shared memory", "err", err)
		}
	}
	if cfg.LoopCountersPath != "" {
		if store, err := shmem.OpenStore(cfg.LoopCountersPath, 256); err == nil {
			r.LoopCountersStore = store
		} else {
			logger.Warn("open loop counters shared memory", "err", err)
		}
	}
	if cfg.WatchdogPath != "" {
		if store, err := shmem.OpenStore(cfg.WatchdogPath, 64); err == nil {
			r.Watchdog = shmem.NewWatchdogWriter(store, 1)
		} else {
			logger.Warn("open watchdog shared memory", "err", err)
		}
	}
}

// dialIPCPeers listens on a Unix-domain socket at each configured path
// and accepts exactly one peer connection per channel, generalizing the
// teacher's kissnet.go net.Listen("tcp", ...) client-accept loop from a
// dynamically-connecting KISS client to this router's fixed set of
// well-known IPC channels (spec §4.7).
func dialIPCPeers(paths []string, logger *log.Logger) *ipcmux.Mux {
	mux := ipcmux.NewMux()
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		_ = os.Remove(path)
		listener, err := net.Listen("unix", path)
		if err != nil {
			logger.Warn("listen on ipc channel", "channel", name, "err", err)
			continue
		}
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("accept ipc channel peer", "channel", name, "err", err)
			continue
		}
		mux.AddPeer(ipcmux.NewPeer(name, conn))
	}
	return mux
}
