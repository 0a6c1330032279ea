// Package extcal pulls busy time out of a host's connected external
// calendars. Every lookup is advisory: a provider that fails or times out
// contributes nothing, it never blocks slot computation or booking.
package extcal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 3 * time.Second

// Provider fetches the busy intervals one connection reports for [from, to).
// Cancelled and free-marked events are already filtered out.
type Provider interface {
	Name() string
	BusyIntervals(ctx context.Context, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error)
}

// ConnectionSource lists a user's calendar connections.
type ConnectionSource interface {
	CalendarConnections(ctx context.Context, userID string) ([]model.CalendarConnection, error)
}

// Bridge fans one busy lookup out to every connected calendar and merges
// the answers. It implements availability.ExternalBusySource: errors are
// logged and swallowed, so a dead calendar means "no additional conflict
// known" rather than an unavailable host.
type Bridge struct {
	connections ConnectionSource
	providers   map[string]Provider
	timeout     time.Duration
	logger      *slog.Logger
}

func NewBridge(connections ConnectionSource, providers []Provider, timeout time.Duration, logger *slog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Bridge{connections: connections, providers: byName, timeout: timeout, logger: logger}
}

func (b *Bridge) ExternalBusy(ctx context.Context, userID string, from, to time.Time) []availability.Interval {
	conns, err := b.connections.CalendarConnections(ctx, userID)
	if err != nil {
		b.logger.Warn("failed to list calendar connections", "user_id", userID, "err", err)
		return nil
	}
	if len(conns) == 0 {
		return nil
	}

	// One goroutine per connection, each bounded by its own timeout and
	// writing only its own index.
	results := make([][]availability.Interval, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		provider, ok := b.providers[conn.Provider]
		if !ok {
			b.logger.Warn("no provider registered for calendar connection",
				"provider", conn.Provider, "connection_id", conn.ID)
			continue
		}
		wg.Add(1)
		go func(i int, provider Provider, conn model.CalendarConnection) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			busy, err := provider.BusyIntervals(callCtx, conn, from, to)
			if err != nil {
				b.logger.Warn("external calendar lookup failed",
					"provider", provider.Name(), "connection_id", conn.ID, "err", err)
				return
			}
			results[i] = busy
		}(i, provider, conn)
	}
	wg.Wait()

	var all []availability.Interval
	for _, r := range results {
		all = append(all, r...)
	}
	return availability.Merge(all)
}
