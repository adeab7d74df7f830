// ino-host drives INO hotend controller boards over their serial links.
// It loads a printer.cfg style configuration, builds a heater and serial
// link per [ino_heater <name>] section and runs the reactor until a signal
// or a fatal link failure shuts it down.
//
// Usage:
//
//	ino-host -config printer.cfg [options]
//
// Options:
//
//	-config string     Configuration file (required)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-logfile string    Log file path (default: stderr)
//	-socket string     Unix socket path for the command console
//	-stats             Periodically log per-heater stats lines
//
// When -socket is given the daemon serves the INO command set
// (INO_FREQUENCY, INO_PID_TUNE, INO_SET_PID_VALUES, INO_READ_PID_VALUES,
// INO_RESET_ERROR_FLAGS, INO_DEBUG_OUT, INO_FIRMWARE_VERSION) as a
// line protocol on that socket.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"ino-host/pkg/config"
	"ino-host/pkg/heater"
	"ino-host/pkg/ino"
	"ino-host/pkg/log"
	"ino-host/pkg/reactor"
	"ino-host/pkg/shutdown"
)

// statsInterval is how often the stats timer logs heater activity.
const statsInterval = 5.0

func main() {
	configFile := flag.String("config", "", "Configuration file (required)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	socket := flag.String("socket", "", "Unix socket path for the command console")
	stats := flag.Bool("stats", false, "Periodically log per-heater stats lines")
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	// Configure the root logger before any component derives its own.
	root := log.New("ino-host")
	root.SetLevel(log.ParseLevel(*logLevel))
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		root.SetWriter(f)
		root.SetColorize(false)
	}
	log.ConfigureFromEnv(root)
	log.SetDefaultLogger(root)
	logger := log.GetLogger("ino-host")

	if err := run(*configFile, *socket, *stats, logger); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func run(configFile, socket string, stats bool, logger *log.Logger) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	reac := reactor.New()
	coord := shutdown.NewCoordinator(reac)
	manager := heater.NewManager()

	sections := cfg.GetPrefixSections("ino_heater ")
	if len(sections) == 0 {
		return fmt.Errorf("no [ino_heater <name>] sections in %s", configFile)
	}

	var links []*ino.Link
	for _, section := range sections {
		linkCfg, err := ino.LoadLinkConfig(section)
		if err != nil {
			return err
		}
		heaterCfg, err := heater.LoadConfig(section)
		if err != nil {
			return err
		}

		link := ino.NewLink(linkCfg, reac, coord, nil)
		h, err := heater.New(heaterCfg, link)
		if err != nil {
			return err
		}
		if err := manager.Register(h); err != nil {
			return err
		}
		links = append(links, link)
		logger.Info("heater %s on %s (control=%s report_time=%.2fs)",
			heaterCfg.Name, linkCfg.Device, heaterCfg.ControlType, linkCfg.ReportTime)
	}

	for _, name := range cfg.GetUnusedSections() {
		logger.Warn("unused config section [%s]", name)
	}

	coord.RegisterHandler("heaters", manager.TurnOffAll)
	for _, link := range links {
		coord.RegisterHandler("link "+link.Name(), link.Close)
	}

	if socket != "" {
		os.Remove(socket) // stale socket from an unclean exit
		ln, err := net.Listen("unix", socket)
		if err != nil {
			return fmt.Errorf("opening console socket: %w", err)
		}
		console := ino.NewConsole(ino.NewRouter(manager))
		go console.Serve(ln)
		coord.RegisterHandler("console", func() {
			ln.Close()
			os.Remove(socket)
		})
		logger.Info("command console on %s", socket)
	}

	if stats {
		reac.RegisterTimer(func(eventtime float64) float64 {
			if active, line := manager.Stats(eventtime); active {
				logger.Info("stats: %s", line)
			}
			return eventtime + statsInterval
		}, reactor.NOW)
	}

	// Registered last so the links are already torn down when the main
	// goroutine is released.
	shutdownCh := make(chan struct{})
	coord.RegisterHandler("main", func() { close(shutdownCh) })

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reac.Run()
	coord.SetReady()
	logger.Info("ino-host ready, %d heater(s)", len(links))

	select {
	case sig := <-sigCh:
		logger.Info("received %v, shutting down", sig)
		coord.Invoke(fmt.Sprintf("signal %v", sig))
	case <-shutdownCh:
		logger.Error("host shutdown: %s", coord.Message())
	}

	reac.End()
	reac.Wait()
	logger.Info("ino-host stopped")

	if coord.Message() != "" && !isSignalMessage(coord.Message()) {
		return fmt.Errorf("shut down: %s", coord.Message())
	}
	return nil
}

func isSignalMessage(msg string) bool {
	return len(msg) >= 7 && msg[:7] == "signal "
}
