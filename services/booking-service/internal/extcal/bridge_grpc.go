//go:build protogen

package extcal

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/timeslot/libs/grpcx"
	calendarbridgev1 "github.com/md-rashed-zaman/timeslot/protos/gen/calendarbridge/v1"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// BridgeProvider asks a calendar-bridge service for busy time on behalf of
// connections whose backends the booking service cannot reach directly.
type BridgeProvider struct {
	client calendarbridgev1.CalendarBridgeServiceClient
}

func NewBridgeProvider(addr string) (Provider, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &BridgeProvider{client: calendarbridgev1.NewCalendarBridgeServiceClient(conn)}, nil
}

func (p *BridgeProvider) Name() string { return "bridge" }

func (p *BridgeProvider) BusyIntervals(ctx context.Context, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error) {
	resp, err := p.client.GetBusyIntervals(ctx, &calendarbridgev1.BusyIntervalsRequest{
		ConnectionId: conn.ID,
		CalendarId:   conn.CalendarID,
		From:         timestamppb.New(from),
		To:           timestamppb.New(to),
	})
	if err != nil {
		return nil, fmt.Errorf("bridge busy intervals: %w", err)
	}

	var out []availability.Interval
	for _, iv := range resp.GetIntervals() {
		if iv.GetStart() == nil || iv.GetEnd() == nil {
			continue
		}
		start := iv.GetStart().AsTime()
		end := iv.GetEnd().AsTime()
		if end.After(start) {
			out = append(out, availability.Interval{Start: start, End: end})
		}
	}
	return out, nil
}
