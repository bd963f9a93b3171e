// Package rest is the notification-fetch collaborator: the unified listing
// endpoint (guarded by a circuit breaker), the two legacy fallback listings,
// and the read-state sync calls. All wire-shape normalization into the tagged
// internal representation happens here, at the ingestion boundary.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/reliefops/notify-agent/internal/domain/model"
	"github.com/sony/gobreaker"
)

// API is the surface the aggregator depends on.
type API interface {
	ListNotifications(ctx context.Context, limit int) ([]model.NotificationItem, error)
	ListRecentIncidents(ctx context.Context) ([]model.NotificationItem, error)
	ListWelfareNeedingHelp(ctx context.Context) ([]model.NotificationItem, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// Interface guard
var _ API = (*Client)(nil)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "unified-notifications",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("rest: breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
		logger: logger,
	}
}

// restNotification is the unified listing's wire shape.
type restNotification struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	PriorityLevel string         `json:"priority_level"`
	RelatedID     int64          `json:"related_id"`
	CreatedAt     string         `json:"created_at"`
	Metadata      map[string]any `json:"metadata"`
}

// item maps one unified-endpoint row into the tagged internal representation.
// Rows of unknown type are skipped.
func (n *restNotification) item() (model.NotificationItem, bool) {
	related := n.RelatedID
	if related == 0 {
		related = n.ID
	}

	switch n.Type {
	case "welfare":
		userName := metaString(n.Metadata, "user_name")
		if userName == "" {
			userName = "Unknown User"
		}
		status := metaString(n.Metadata, "status")
		if status == "" {
			status = "needs_help"
		}

		return model.NotificationItem{
			ID:         model.WelfareID(related),
			Kind:       model.KindWelfare,
			Title:      n.Title,
			Message:    n.Message,
			Priority:   model.ParsePriority(n.PriorityLevel),
			OccurredAt: model.ParseEventTime(n.CreatedAt),
			UserName:   userName,
			Status:     status,
		}, true

	case "incident":
		title := metaString(n.Metadata, "incident_type")
		if title == "" {
			title = model.StripIconToken(n.Title)
		}

		return model.NotificationItem{
			ID:         strconv.FormatInt(related, 10),
			Kind:       model.KindIncident,
			Title:      title,
			Message:    n.Message,
			Priority:   model.ParsePriority(n.PriorityLevel),
			OccurredAt: model.ParseEventTime(n.CreatedAt),
		}, true
	}

	return model.NotificationItem{}, false
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

// ListNotifications fetches one bounded page from the unified endpoint. The
// circuit breaker fails fast after repeated failures so callers fall back to
// the legacy listings without waiting out the HTTP timeout every time.
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]model.NotificationItem, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		var body struct {
			Success       bool               `json:"success"`
			Notifications []restNotification `json:"notifications"`
		}
		if err := c.getJSON(ctx, fmt.Sprintf("/api/notifications?limit=%d", limit), &body); err != nil {
			return nil, err
		}
		if !body.Success {
			return nil, fmt.Errorf("rest: unified listing reported failure")
		}

		items := make([]model.NotificationItem, 0, len(body.Notifications))
		for i := range body.Notifications {
			if item, ok := body.Notifications[i].item(); ok {
				items = append(items, item)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]model.NotificationItem), nil
}

// ListRecentIncidents is the legacy incident listing used when the unified
// endpoint is unavailable.
func (c *Client) ListRecentIncidents(ctx context.Context) ([]model.NotificationItem, error) {
	var body struct {
		Success   bool                    `json:"success"`
		Incidents []model.IncidentPayload `json:"incidents"`
	}
	if err := c.getJSON(ctx, "/api/incidents/recent", &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("rest: incident listing reported failure")
	}

	items := make([]model.NotificationItem, 0, len(body.Incidents))
	for i := range body.Incidents {
		items = append(items, body.Incidents[i].Item())
	}
	return items, nil
}

// ListWelfareNeedingHelp is the legacy welfare listing (reports still waiting
// on a response) used when the unified endpoint is unavailable.
func (c *Client) ListWelfareNeedingHelp(ctx context.Context) ([]model.NotificationItem, error) {
	var body struct {
		Success bool                   `json:"success"`
		Reports []model.WelfarePayload `json:"reports"`
	}
	if err := c.getJSON(ctx, "/api/welfare-reports/need-help", &body); err != nil {
		return nil, err
	}
	if !body.Success {
		return nil, fmt.Errorf("rest: welfare listing reported failure")
	}

	items := make([]model.NotificationItem, 0, len(body.Reports))
	for i := range body.Reports {
		items = append(items, body.Reports[i].Item())
	}
	return items, nil
}

// MarkRead informs the server that one notification was acknowledged.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	var body struct {
		Success bool `json:"success"`
	}
	if err := c.postJSON(ctx, "/api/notifications/"+id+"/read", &body); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("rest: mark-read reported failure")
	}
	return nil
}

// MarkAllRead informs the server that every notification was acknowledged.
func (c *Client) MarkAllRead(ctx context.Context) error {
	var body struct {
		Success bool `json:"success"`
	}
	if err := c.postJSON(ctx, "/api/notifications/read-all", &body); err != nil {
		return err
	}
	if !body.Success {
		return fmt.Errorf("rest: mark-all-read reported failure")
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, out)
}

func (c *Client) postJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rest: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: %s %s: decode: %w", method, path, err)
	}
	return nil
}
