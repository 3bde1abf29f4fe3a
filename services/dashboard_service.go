package services

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"go.pilab.hu/piwatch"
	"go.pilab.hu/piwatch/api"
	"go.pilab.hu/piwatch/cache"
)

// overFetchLimit is how many query records are pulled per aggregation. The
// v6 API cannot filter by status server-side, so the client fetches well
// past the display limit and filters locally.
const overFetchLimit = 500

// blockedStatuses are the v6 classifications that count as blocked.
var blockedStatuses = map[string]struct{}{
	"DENYLIST": {},
	"GRAVITY":  {},
}

// DashboardService is the outward interface of the proxy core: blocked-query
// aggregation, whitelisting and health, all backed by the resilient
// appliance client.
type DashboardService struct {
	client     *piwatch.Client
	sessions   *piwatch.SessionManager
	store      *piwatch.SessionStore
	blocked    *cache.BlockedCache
	maxEntries int
	host       string
}

func NewDashboardService(
	client *piwatch.Client,
	sessions *piwatch.SessionManager,
	store *piwatch.SessionStore,
	blocked *cache.BlockedCache,
	maxEntries int,
	host string,
) *DashboardService {
	return &DashboardService{
		client:     client,
		sessions:   sessions,
		store:      store,
		blocked:    blocked,
		maxEntries: maxEntries,
		host:       host,
	}
}

// Blocked returns the recently blocked domains, deduplicated and newest
// first. Results are memoised for a fraction of the dashboard poll interval.
func (s *DashboardService) Blocked(ctx context.Context) ([]api.BlockedEntry, error) {
	if entries, ok := s.blocked.Get(); ok {
		return entries, nil
	}

	queries, err := s.client.Queries(ctx, overFetchLimit)
	if err != nil {
		return nil, err
	}

	entries := AggregateBlocked(queries, s.maxEntries)
	s.blocked.Set(entries)

	return entries, nil
}

// AggregateBlocked folds raw query records into the dashboard's blocked
// list: only DENYLIST/GRAVITY records count, each domain appears once with
// its hit count and latest timestamp, ordered newest first and truncated to
// max entries.
func AggregateBlocked(queries []api.Query, max int) []api.BlockedEntry {
	byDomain := make(map[string]*api.BlockedEntry)

	for _, q := range queries {
		if _, blocked := blockedStatuses[q.Status]; !blocked || q.Domain == "" {
			continue
		}

		entry, ok := byDomain[q.Domain]
		if !ok {
			byDomain[q.Domain] = &api.BlockedEntry{
				Domain:          q.Domain,
				Count:           1,
				LatestTimestamp: q.Time,
			}
			continue
		}

		entry.Count++
		if q.Time > entry.LatestTimestamp {
			entry.LatestTimestamp = q.Time
		}
	}

	entries := make([]api.BlockedEntry, 0, len(byDomain))
	for _, entry := range byDomain {
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LatestTimestamp > entries[j].LatestTimestamp
	})

	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}

	return entries
}

// Whitelist adds domain to the appliance's exact allow list. An empty
// domain is rejected before any upstream call. On success the cached
// blocked list is dropped so the next poll reflects the change.
func (s *DashboardService) Whitelist(ctx context.Context, domain string) error {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return piwatch.ErrDomainRequired
	}

	if err := s.client.AllowDomain(ctx, domain); err != nil {
		return err
	}

	s.blocked.Invalidate()
	log.Info().Str("domain", domain).Msg("domain added to whitelist")

	return nil
}

// Health reports whether the appliance answers its status probe and whether
// a session is currently held. A dead appliance is a payload here, not an
// error.
func (s *DashboardService) Health(ctx context.Context) api.HealthStatus {
	reachable := s.client.Status(ctx) == nil
	authenticated := s.sessions.Token(ctx) != ""
	_, _, lastErr := s.store.Read()

	return api.HealthStatus{
		Reachable:     reachable,
		Authenticated: authenticated,
		Host:          s.host,
		AuthError:     lastErr,
	}
}

// LastAuthError exposes the most recent login failure for error payloads.
func (s *DashboardService) LastAuthError() string {
	_, _, lastErr := s.store.Read()

	return lastErr
}
