// mic_tail follows a running mic_monitor and prints the newest RMS value of
// each channel as frames arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/NotCoffee418/mic_monitor/pkg/config"
	"github.com/NotCoffee418/mic_monitor/pkg/liveview"
	"github.com/NotCoffee418/mic_monitor/pkg/pathing"
	"github.com/NotCoffee418/mic_monitor/pkg/types"
	"github.com/NotCoffee418/mic_monitor/pkg/viewclient"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	configPath := flag.String("config", pathing.GetTailConfigPath(), "config file, created with defaults if missing")
	host := flag.String("host", "", "monitor host:port, overrides monitor_host")
	channel := flag.Int("channel", -2, "only print this channel, -1 for all")
	flag.Parse()

	cfg, err := config.LoadTailConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *host != "" {
		cfg.MonitorHost = *host
	}
	if *channel != -2 {
		cfg.Channel = *channel
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = viewclient.StartListener(ctx, cfg.MonitorHost, func(frame *liveview.Frame) {
		if line := formatFrame(frame, cfg.Channel); line != "" {
			fmt.Println(line)
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("host", cfg.MonitorHost).Msg("Lost the monitor")
	}
}

// formatFrame renders the last point of every channel's headline metric.
// Channels without points are skipped.
func formatFrame(frame *liveview.Frame, only int) string {
	metric := types.MetricRMS
	if frame.Protocol == types.ProtocolBinary {
		metric = types.MetricRaw
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "t=%8.3fs %7.1f Hz", frame.XMax, frame.Status.RateHz)
	printed := 0
	for _, ch := range frame.Channels {
		if only >= 0 && ch.Channel != only {
			continue
		}
		mf, ok := ch.Metrics[metric]
		if !ok || len(mf.Values) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  A%d %s=%.3f %s", ch.Channel, metric, mf.Values[len(mf.Values)-1], mf.Unit)
		printed++
	}
	if printed == 0 {
		return ""
	}
	return sb.String()
}
