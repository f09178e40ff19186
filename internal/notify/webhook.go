package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/zulandar/shopfloor/internal/models"
	"gorm.io/gorm"
)

// Header names set on webhook requests.
const (
	HeaderEvent     = "X-Shopfloor-Event"
	HeaderDelivery  = "X-Shopfloor-Delivery"
	HeaderSignature = "X-Shopfloor-Signature"
)

// WebhookBody is the JSON document POSTed to subscribers.
type WebhookBody struct {
	ID         string                 `json:"id"`
	Event      string                 `json:"event"`
	TenantID   string                 `json:"tenant_id"`
	OccurredAt string                 `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// WebhookSink fans events out to the tenant's active webhook subscriptions.
type WebhookSink struct {
	db     *gorm.DB
	client *http.Client
}

// NewWebhookSink reads subscriptions from db. A nil client uses http.DefaultClient.
func NewWebhookSink(db *gorm.DB, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{db: db, client: client}
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Endpoints returns one sink per subscription interested in evt.
func (s *WebhookSink) Endpoints(ctx context.Context, evt Event) ([]Sink, error) {
	var hooks []models.Webhook
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", evt.TenantID, true).
		Order("created_at ASC").
		Find(&hooks).Error; err != nil {
		return nil, fmt.Errorf("notify: load webhooks for tenant %s: %w", evt.TenantID, err)
	}
	var out []Sink
	for _, h := range hooks {
		if !subscribed(h.Events, evt.Kind) {
			continue
		}
		out = append(out, &webhookEndpoint{hook: h, client: s.client})
	}
	return out, nil
}

// Deliver posts evt to every matching subscription once.
func (s *WebhookSink) Deliver(ctx context.Context, evt Event) error {
	endpoints, err := s.Endpoints(ctx, evt)
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, ep := range endpoints {
		if err := ep.Deliver(ctx, evt); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func subscribed(events, kind string) bool {
	if strings.TrimSpace(events) == "" {
		return true
	}
	for _, e := range strings.Split(events, ",") {
		if strings.TrimSpace(e) == kind {
			return true
		}
	}
	return false
}

type webhookEndpoint struct {
	hook   models.Webhook
	client *http.Client
}

func (e *webhookEndpoint) Name() string      { return "webhook" }
func (e *webhookEndpoint) WebhookID() string { return e.hook.ID }

func (e *webhookEndpoint) Deliver(ctx context.Context, evt Event) error {
	return PostJSON(ctx, e.client, e.hook.URL, e.hook.Secret, evt)
}

// PostJSON sends evt as a WebhookBody to url, signing it when secret is set.
// 4xx responses other than 408 and 429 are permanent.
func PostJSON(ctx context.Context, client *http.Client, url, secret string, evt Event) error {
	fields, err := evt.Payload.Fields()
	if err != nil {
		return Permanent(err)
	}
	body, err := json.Marshal(WebhookBody{
		ID:         evt.ID,
		Event:      evt.Kind,
		TenantID:   evt.TenantID,
		OccurredAt: Timestamp(evt.OccurredAt),
		Data:       fields,
	})
	if err != nil {
		return Permanent(fmt.Errorf("marshal webhook body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, evt.Kind)
	req.Header.Set(HeaderDelivery, evt.ID)
	if secret != "" {
		req.Header.Set(HeaderSignature, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	se := &StatusError{Code: resp.StatusCode}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return Permanent(se)
	}
	return se
}
