package karotz

import (
	"context"
	"net/url"
	"strings"
)

// Camera serves still images from the rabbit's camera.
type Camera struct {
	client *Client
}

// Image returns a JPEG, or nil when none is available. It never fails.
func (c *Camera) Image(ctx context.Context) []byte {
	return c.client.Snapshot(ctx)
}

// Diagnostics exposes firmware, network and storage details plus the
// webhook URL the rabbit must call.
type Diagnostics struct {
	coord      *Coordinator
	webhookURL string
}

// Available reports whether the last status poll succeeded.
func (d *Diagnostics) Available() bool {
	return d.coord.LastUpdateSuccess()
}

// Values returns the diagnostic keys present in the last snapshot.
func (d *Diagnostics) Values() map[string]string {
	return d.coord.Data().Diagnostics()
}

// Firmware returns the reported firmware version.
func (d *Diagnostics) Firmware() string {
	return d.coord.Data().Firmware()
}

// WebhookURL returns the URL to configure on the rabbit.
func (d *Diagnostics) WebhookURL() string {
	return d.webhookURL
}

// WebhookURL joins the public base URL and a webhook id.
func WebhookURL(publicBaseURL, webhookID string) string {
	if webhookID == "" {
		return ""
	}
	return strings.TrimRight(publicBaseURL, "/") + "/api/webhook/" + url.PathEscape(webhookID)
}
