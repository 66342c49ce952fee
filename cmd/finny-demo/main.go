package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asytsai/finny"
	"github.com/asytsai/finny/metrics"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b := finny.NewBuilder("traffic-light").Logger(logger)
	traffic := b.Region("traffic", "red")
	traffic.State("red").
		Timer(2 * time.Second).
		OnTimeout("green", nil, nil)
	traffic.State("green").
		Timer(2 * time.Second).
		OnTimeout("yellow", nil, nil)
	traffic.State("yellow").
		Timer(time.Second).
		OnTimeout("red", nil, nil)

	walk := b.Region("pedestrian", "dontWalk")
	walk.State("dontWalk").
		On("button", "waiting", nil, func(hc *finny.HookContext, evt finny.Event, from, to finny.StateID) error {
			hc.Context().Add("requests", 1)
			return nil
		})
	walk.State("waiting").
		Timer(3 * time.Second).
		OnTimeout("walk", nil, nil)
	walk.State("walk").
		Timer(4 * time.Second).
		OnTimeout("dontWalk", nil, nil)

	table, err := b.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build:", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	inspector := finny.MultiInspector{
		finny.NewSlogInspector(logger),
		metrics.NewInspector(registry),
	}

	m := finny.New(table, finny.NewContext(),
		finny.WithLogger(logger),
		finny.WithInspector(inspector),
	)

	trafficRegion, _ := table.RegionID("traffic")
	pedRegion, _ := table.RegionID("pedestrian")

	if err := m.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}
	defer m.Stop()

	go func() {
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", nil); err != nil {
			logger.Error("metrics server", "err", err)
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	presses := 0
	for {
		select {
		case <-ticker.C:
			if _, err := m.Drain(); err != nil {
				fmt.Fprintln(os.Stderr, "drain:", err)
				return
			}
			if presses < 3 && m.ActiveName(pedRegion) == "dontWalk" {
				if _, err := m.Dispatch(table.Event("button", nil)); err != nil {
					fmt.Fprintln(os.Stderr, "dispatch:", err)
					return
				}
				presses++
			}
			fmt.Printf("traffic=%s pedestrian=%s requests=%d\n",
				m.ActiveName(trafficRegion), m.ActiveName(pedRegion),
				m.Context().GetInt("requests"))
		case <-sig:
			fmt.Println("\nShutting down gracefully...")
			return
		}
	}
}
