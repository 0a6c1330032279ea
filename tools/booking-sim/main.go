// booking-sim fires N concurrent booking requests at the same slot and
// reports how the race resolved. Against a correctly configured service
// exactly one request wins with 201 and the rest come back 409.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

func main() {
	var (
		baseURL     = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		eventTypeID = flag.String("event-type-id", getenv("EVENT_TYPE_ID", ""), "event type to book")
		startRaw    = flag.String("start", getenv("SLOT_START", ""), "slot start, RFC 3339")
		duration    = flag.Int("duration-minutes", 30, "slot length in minutes")
		n           = flag.Int("n", 10, "number of concurrent requests")
		timezone    = flag.String("timezone", "UTC", "guest timezone sent with every request")
	)
	flag.Parse()

	if strings.TrimSpace(*eventTypeID) == "" {
		fatal("EVENT_TYPE_ID is required")
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(*startRaw))
	if err != nil {
		fatal("SLOT_START must be RFC 3339, e.g. 2026-03-02T09:00:00Z")
	}
	end := start.Add(time.Duration(*duration) * time.Minute)
	url := strings.TrimRight(*baseURL, "/") + "/api/v1/public/book"

	type result struct {
		guest  int
		status int
		body   string
	}
	results := make([]result, *n)

	var wg sync.WaitGroup
	for i := 0; i < *n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, err := json.Marshal(map[string]any{
				"event_type_id":  *eventTypeID,
				"guest_name":     fmt.Sprintf("Sim Guest %d", i),
				"guest_email":    fmt.Sprintf("sim-%d@example.com", i),
				"guest_timezone": *timezone,
				"start_time":     start.UTC().Format(time.RFC3339),
				"end_time":       end.UTC().Format(time.RFC3339),
			})
			if err != nil {
				results[i] = result{guest: i, status: -1, body: err.Error()}
				return
			}
			resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				results[i] = result{guest: i, status: -1, body: err.Error()}
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			results[i] = result{guest: i, status: resp.StatusCode, body: strings.TrimSpace(string(body))}
		}(i)
	}
	wg.Wait()

	var won, conflicted, failed int
	for _, r := range results {
		switch r.status {
		case http.StatusCreated:
			won++
			fmt.Printf("guest %d: 201 created\n", r.guest)
		case http.StatusConflict:
			conflicted++
		default:
			failed++
			fmt.Printf("guest %d: status=%d body=%s\n", r.guest, r.status, r.body)
		}
	}
	fmt.Printf("won=%d conflicted=%d failed=%d\n", won, conflicted, failed)

	if won != 1 {
		fatal(fmt.Sprintf("expected exactly one winner, got %d", won))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
