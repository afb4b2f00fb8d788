// Command scan_replay replays a recorded day of gate scans against a
// running API instance, for smoke-testing the scan pipeline end to end
// against a seeded database.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type scan struct {
	DeviceSerial string    `json:"device_serial"`
	StudentID    string    `json:"student_id"`
	At           time.Time `json:"at"`
}

type config struct {
	Scans []scan `json:"scans"`
}

type outcome struct {
	Scan     scan
	Status   int
	Action   string
	Error    error
	Duration time.Duration
}

func main() {
	var (
		base      string
		scansPath string
		token     string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&scansPath, "scans", filepath.Join("scripts", "scan_replay", "scans.json"), "Path to JSON scans file")
	flag.StringVar(&token, "token", "", "Bearer token for the scan endpoint")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	scans, err := loadScans(scansPath)
	if err != nil {
		log.Fatalf("failed to load scans: %v", err)
	}

	// Replay in recorded order so time-in precedes time-out.
	sort.Slice(scans, func(i, j int) bool { return scans[i].At.Before(scans[j].At) })

	client := &http.Client{Timeout: timeout}
	var (
		outcomes []outcome
		failed   int
	)
	for _, s := range scans {
		out := replayScan(client, base, token, s)
		if out.Error != nil || out.Status >= 500 {
			failed++
		}
		outcomes = append(outcomes, out)
	}

	printReport(outcomes)
	fmt.Printf("Replayed %d scans, %d failed\n", len(outcomes), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func loadScans(path string) ([]scan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Scans) == 0 {
		return nil, fmt.Errorf("no scans defined in %s", path)
	}
	return cfg.Scans, nil
}

func replayScan(client *http.Client, base, token string, s scan) outcome {
	out := outcome{Scan: s}

	payload, err := json.Marshal(map[string]interface{}{
		"device_serial": s.DeviceSerial,
		"student_id":    s.StudentID,
		"at":            s.At,
	})
	if err != nil {
		out.Error = err
		return out
	}

	url := strings.TrimRight(base, "/") + "/api/v1/attendance/scans"
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		out.Error = err
		return out
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	out.Duration = time.Since(start)
	if err != nil {
		out.Error = err
		return out
	}
	defer resp.Body.Close()

	out.Status = resp.StatusCode
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		out.Error = fmt.Errorf("read response: %w", err)
		return out
	}

	var envelope struct {
		Data struct {
			Action string `json:"action"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		out.Action = envelope.Data.Action
	}
	return out
}

func printReport(outcomes []outcome) {
	for _, out := range outcomes {
		status := fmt.Sprintf("%d %s", out.Status, out.Action)
		if out.Error != nil {
			status = "ERROR " + out.Error.Error()
		}
		fmt.Printf("%-25s student=%-12s device=%-8s -> %s (%s)\n",
			out.Scan.At.Format(time.RFC3339), out.Scan.StudentID, out.Scan.DeviceSerial, status, out.Duration)
	}
}
