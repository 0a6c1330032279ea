package extcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
)

// caldavSettings is the JSON stored on a caldav connection.
type caldavSettings struct {
	Endpoint string `json:"endpoint"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "timeslot/1.0")
	return t.base.RoundTrip(req)
}

// CalDAVProvider reads busy time from any CalDAV server (iCloud, Fastmail,
// Nextcloud). The connection's CalendarID is the calendar collection path.
type CalDAVProvider struct{}

func NewCalDAVProvider() *CalDAVProvider { return &CalDAVProvider{} }

func (p *CalDAVProvider) Name() string { return "caldav" }

func (p *CalDAVProvider) BusyIntervals(ctx context.Context, conn model.CalendarConnection, from, to time.Time) ([]availability.Interval, error) {
	var settings caldavSettings
	if err := json.Unmarshal(conn.Settings, &settings); err != nil {
		return nil, fmt.Errorf("parse caldav settings: %w", err)
	}

	httpClient := &http.Client{Transport: &basicAuthTransport{
		username: settings.Username,
		password: settings.Password,
		base:     http.DefaultTransport,
	}}
	client, err := caldav.NewClient(httpClient, settings.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from.UTC(),
				End:   to.UTC(),
			}},
		},
	}
	objects, err := client.QueryCalendar(ctx, conn.CalendarID, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}

	var out []availability.Interval
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			if status, err := ev.Status(); err == nil && status == ical.EventCancelled {
				continue
			}
			start, err := ev.DateTimeStart(time.UTC)
			if err != nil {
				continue
			}
			end, err := ev.DateTimeEnd(time.UTC)
			if err != nil || !end.After(start) {
				continue
			}
			out = append(out, availability.Interval{Start: start.UTC(), End: end.UTC()})
		}
	}
	return out, nil
}
