// Package meeting provisions video meeting links for bookings. Provisioning
// runs from the outbox consumer after the booking is committed; a failure
// here never unwinds a booking.
package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config describes the meeting to create.
type Config struct {
	BookingID  string
	Title      string
	StartTime  time.Time
	Duration   time.Duration
	HostID     string
	GuestEmail string
}

// Details is what the provider handed back. Password is empty when the
// provider does not protect meetings.
type Details struct {
	Link     string `json:"link"`
	Password string `json:"password"`
}

type Provisioner interface {
	CreateMeeting(ctx context.Context, cfg Config) (Details, error)
	ProviderID() string
}

// WebhookProvisioner posts the meeting config to an external endpoint
// (typically a small bridge in front of Zoom or Meet) and expects
// {"link": ..., "password": ...} back.
type WebhookProvisioner struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookProvisioner(url string, token string) *WebhookProvisioner {
	return &WebhookProvisioner{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (p *WebhookProvisioner) ProviderID() string {
	return "meeting-webhook"
}

func (p *WebhookProvisioner) CreateMeeting(ctx context.Context, cfg Config) (Details, error) {
	if p.url == "" {
		return Details{}, errors.New("meeting webhook url not configured")
	}
	payload := map[string]any{
		"booking_id":       cfg.BookingID,
		"title":            cfg.Title,
		"start_time":       cfg.StartTime.UTC().Format(time.RFC3339),
		"duration_minutes": int(cfg.Duration.Minutes()),
		"host_id":          cfg.HostID,
		"guest_email":      cfg.GuestEmail,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Details{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(raw))
	if err != nil {
		return Details{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return Details{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Details{}, fmt.Errorf("meeting webhook returned %d", resp.StatusCode)
	}

	var details Details
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return Details{}, fmt.Errorf("decode meeting webhook response: %w", err)
	}
	if details.Link == "" {
		return Details{}, errors.New("meeting webhook returned no link")
	}
	return details, nil
}

// NoopProvisioner creates no meetings; bookings simply carry no link.
type NoopProvisioner struct{}

func NewNoopProvisioner() *NoopProvisioner {
	return &NoopProvisioner{}
}

func (p *NoopProvisioner) ProviderID() string {
	return "meeting-noop"
}

func (p *NoopProvisioner) CreateMeeting(_ context.Context, _ Config) (Details, error) {
	return Details{}, nil
}
