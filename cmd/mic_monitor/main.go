// mic_monitor reads the microphone board's serial stream, keeps a rolling
// history per channel and serves it to a live viewer over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/NotCoffee418/mic_monitor/pkg/capture"
	"github.com/NotCoffee418/mic_monitor/pkg/channelstore"
	"github.com/NotCoffee418/mic_monitor/pkg/config"
	"github.com/NotCoffee418/mic_monitor/pkg/decoder"
	"github.com/NotCoffee418/mic_monitor/pkg/esmutils"
	"github.com/NotCoffee418/mic_monitor/pkg/frequency"
	"github.com/NotCoffee418/mic_monitor/pkg/liveview"
	"github.com/NotCoffee418/mic_monitor/pkg/pathing"
	"github.com/NotCoffee418/mic_monitor/pkg/port_reader"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	configPath := flag.String("config", pathing.GetMonitorConfigPath(), "config file, created with defaults if missing")
	port := flag.String("port", "", "serial device, overrides serial_device")
	baudrate := flag.Uint("baudrate", 0, "serial baudrate, overrides baudrate")
	points := flag.Int("points", 0, "points kept per series, overrides max_points")
	protocol := flag.String("protocol", "", "text or binary, overrides protocol")
	listen := flag.String("listen", "", "host:port for the live view, overrides listen_address/listen_port")
	listPorts := flag.Bool("list-ports", false, "print candidate serial devices and exit")
	flag.Parse()

	if *listPorts {
		ports := port_reader.ListPorts()
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, warnings, err := config.LoadMonitorConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
	}
	for _, w := range warnings {
		log.Warn().Str("path", *configPath).Msg(w)
	}
	if err := applyFlags(cfg, *port, *baudrate, *points, *protocol, *listen); err != nil {
		log.Fatal().Err(err).Msg("Invalid command line")
	}
	for _, w := range cfg.Sanitize() {
		log.Warn().Msg(w)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Monitor stopped with error")
	}
}

func applyFlags(cfg *config.MonitorConfig, port string, baudrate uint, points int, protocol, listen string) error {
	if port != "" {
		cfg.SerialDevice = port
	}
	if baudrate != 0 {
		cfg.Baudrate = baudrate
	}
	if points != 0 {
		cfg.MaxPoints = points
	}
	if protocol != "" {
		if _, err := types.ParseProtocol(protocol); err != nil {
			return err
		}
		cfg.Protocol = protocol
	}
	if listen != "" {
		host, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("--listen: %w", err)
		}
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("--listen port: %w", err)
		}
		cfg.ListenAddress, cfg.ListenPort = host, p
	}
	return nil
}

func run(cfg *config.MonitorConfig) error {
	protocol := cfg.ProtocolType()

	transport, err := port_reader.Open(port_reader.SerialOptions{
		Device:      cfg.SerialDevice,
		Baudrate:    cfg.Baudrate,
		ReadTimeout: cfg.ReadTimeout(),
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("device", transport.Device()).
		Uint("baudrate", cfg.Baudrate).
		Str("protocol", string(protocol)).
		Msg("Serial port open")

	dec, err := decoder.New(protocol, decoder.Options{SamplePeriod: cfg.SamplePeriod()})
	if err != nil {
		transport.Close()
		return err
	}
	store, err := channelstore.New(cfg.MaxPoints)
	if err != nil {
		transport.Close()
		return err
	}
	estimator := frequency.New(frequency.RealClock())

	loop := capture.New(transport, dec, store, estimator, capture.Options{
		RawEcho: capture.DefaultRawEcho,
		OnError: func(err error) {
			if errors.Is(err, port_reader.ErrClosed) {
				log.Error().Err(err).Msg("Serial port closed under the capture loop")
			}
		},
	})

	var scales []liveview.ValueScale
	if protocol == types.ProtocolBinary && cfg.AdcVrefMv > 0 {
		vref, full := cfg.AdcVrefMv, cfg.AdcFullScale
		scales = append(scales, liveview.ValueScale{
			Metric: types.MetricRaw,
			Unit:   "mV",
			Apply: func(v float64) float64 {
				return esmutils.RawToMillivolts(v, vref, full)
			},
		})
	}
	viewer := liveview.NewServer(store, loop, liveview.Options{
		Protocol: protocol,
		Policy:   cfg.ViewPolicy(),
		Scales:   scales,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := loop.Start(); err != nil {
		transport.Close()
		return err
	}

	renderCtx, stopRender := context.WithCancel(ctx)
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		viewer.Run(renderCtx)
	}()
	go logStatus(renderCtx, loop)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           viewer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("listen", srv.Addr).Msg("Starting live view server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-serveErr:
		runErr = err
	}

	// Consumer first, then producer, then the port.
	stopRender()
	<-renderDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	httpErr := srv.Shutdown(shutdownCtx)
	return errors.Join(runErr, httpErr, stopCapture(loop, transport, exitGrace))
}

// Extra time given to a capture goroutine that outlived Stop.
const exitGrace = 5 * time.Second

type stoppable interface {
	Stop() error
	Wait(ctx context.Context) error
}

// stopCapture closes the port only once the capture goroutine has exited, so
// a read never races the close. If it never exits the port is left open.
func stopCapture(loop stoppable, port io.Closer, grace time.Duration) error {
	stopErr := loop.Stop()
	if stopErr != nil {
		log.Warn().Err(stopErr).Dur("grace", grace).Msg("Capture still running, waiting before closing the port")
		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := loop.Wait(ctx); err != nil {
			log.Error().Err(err).Msg("Capture did not exit, leaving the serial port open")
			return stopErr
		}
	}
	return errors.Join(stopErr, port.Close())
}

// logStatus prints one console line per second while capturing.
func logStatus(ctx context.Context, loop *capture.Loop) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := loop.Status()
			if !st.Running {
				continue
			}
			log.Info().
				Str("samples", humanize.Comma(int64(st.TotalSamples))).
				Str("freq", fmt.Sprintf("%.1f Hz", st.RateHz)).
				Str("elapsed", fmt.Sprintf("%.1fs", st.Elapsed)).
				Uint64("errors", st.Errors).
				Msg("Capturing")
		}
	}
}
