package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/ferZyx/ip-cam-monitor/internal/alarm"
	"github.com/ferZyx/ip-cam-monitor/internal/dvrip"
	"github.com/ferZyx/ip-cam-monitor/internal/extract"
)

// One-shot resolver: pull the latest alarms (or a time range) from a
// camera, write the photos to a directory and dump a report.json next to
// them. Meant for field diagnostics, no daemon, no stores.
func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", os.Getenv("CAMERA_ADDR"), "camera host:port")
	user := flag.String("user", envOr("CAMERA_USER", "admin"), "camera username")
	pass := flag.String("pass", os.Getenv("CAMERA_PASSWORD"), "camera password")
	latest := flag.Int("n", 5, "resolve the N most recent alarms")
	beginStr := flag.String("begin", "", "range begin (2006-01-02 15:04:05), overrides -n with -end")
	endStr := flag.String("end", "", "range end")
	outDir := flag.String("out", "alarm-photos", "output directory")
	workers := flag.Int("workers", 3, "concurrent resolutions")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	if *addr == "" {
		log.Fatal("camera address required (-addr or CAMERA_ADDR)")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	camCfg := dvrip.Config{
		Address:     *addr,
		Credentials: dvrip.Credentials{Username: *user, Password: *pass},
	}
	client := dvrip.NewClient(camCfg, *workers)
	defer client.Close()

	extractor := extract.New(extract.Options{})
	pipe := alarm.NewPipeline(client, extractor, extractor, alarm.PipelineConfig{Workers: *workers})
	svc := alarm.NewService(client, pipe, alarm.NewTimeline(0, 0), alarm.ServiceConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		events []*alarm.Event
		err    error
	)
	if *beginStr != "" && *endStr != "" {
		begin, perr := time.ParseInLocation(dvrip.TimeLayout, *beginStr, time.Local)
		if perr != nil {
			log.Fatalf("bad -begin: %v", perr)
		}
		end, perr := time.ParseInLocation(dvrip.TimeLayout, *endStr, time.Local)
		if perr != nil {
			log.Fatalf("bad -end: %v", perr)
		}
		events, err = svc.ResolveRange(ctx, begin, end, 0)
	} else {
		events, err = svc.ResolveLatest(ctx, *latest)
	}
	if err != nil {
		log.Fatalf("resolution failed: %v", err)
	}

	resolved := 0
	for _, ev := range events {
		if !ev.Resolved() {
			continue
		}
		resolved++
		name := fmt.Sprintf("%s_%s.jpg", ev.Timestamp.Format("20060102_150405"), ev.ID.String()[:8])
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, ev.Image, 0o644); err != nil {
			log.Printf("write %s: %v", path, err)
			continue
		}
		fmt.Printf("%s  %-22s %s\n", ev.Timestamp.Format(dvrip.TimeLayout), ev.Resolution, path)
	}

	reportPath := filepath.Join(*outDir, "report.json")
	if err := writeReport(reportPath, events); err != nil {
		log.Printf("write report: %v", err)
	}

	fmt.Printf("\n%d/%d alarms resolved, report at %s\n", resolved, len(events), reportPath)
	if resolved < len(events) {
		os.Exit(1)
	}
}

type reportEntry struct {
	ID         string       `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	Code       string       `json:"code"`
	Realtime   bool         `json:"realtime"`
	Resolution string       `json:"resolution"`
	Detail     alarm.Report `json:"detail"`
}

func writeReport(path string, events []*alarm.Event) error {
	entries := make([]reportEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, reportEntry{
			ID:         ev.ID.String(),
			Timestamp:  ev.Timestamp,
			Code:       ev.Code,
			Realtime:   ev.Realtime,
			Resolution: string(ev.Resolution),
			Detail:     ev.Report,
		})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
