// Package api holds the wire types shared between the appliance client and
// the dashboard's own HTTP surface.
package api

// Query is one DNS query record returned by the appliance's
// GET /api/queries endpoint. Time is fractional seconds since the epoch, as
// the v6 API reports it.
type Query struct {
	Domain string  `json:"domain"`
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}

// QueriesResponse is the envelope around the query log.
type QueriesResponse struct {
	Queries []Query `json:"queries"`
}

// BlockedEntry is one aggregated row of the dashboard's blocked list: a
// domain, how often it was blocked in the inspected window, and the most
// recent hit.
type BlockedEntry struct {
	Domain          string  `json:"domain"`
	Count           int     `json:"count"`
	LatestTimestamp float64 `json:"latest_timestamp"`
}

// WhitelistRequest is the body of POST /api/whitelist.
type WhitelistRequest struct {
	Domain string `json:"domain"`
}

// HealthStatus reports appliance reachability as seen from the dashboard.
type HealthStatus struct {
	Reachable     bool   `json:"pihole_reachable"`
	Authenticated bool   `json:"authenticated"`
	Host          string `json:"pihole_host"`
	AuthError     string `json:"auth_error,omitempty"`
}
