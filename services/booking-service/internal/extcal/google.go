package extcal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// GoogleProvider reads busy time from Google Calendar. The connection's
// settings hold the stored OAuth token; the provider's config refreshes it
// as needed.
type GoogleProvider struct {
	oauth *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret string) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) BusyIntervals(ctx context.Context, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error) {
	var token oauth2.Token
	if err := json.Unmarshal(conn.Settings, &token); err != nil {
		return nil, fmt.Errorf("parse stored google token: %w", err)
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(p.oauth.Client(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	events, err := service.Events.List(conn.CalendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var out []availability.Interval
	for _, item := range events.Items {
		if item.Status == "cancelled" || item.Transparency == "transparent" {
			continue
		}
		// All-day events carry a date, not a datetime; they do not block
		// specific slots.
		if item.Start == nil || item.End == nil || item.Start.DateTime == "" || item.End.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			continue
		}
		out = append(out, availability.Interval{Start: start.UTC(), End: end.UTC()})
	}
	return out, nil
}
