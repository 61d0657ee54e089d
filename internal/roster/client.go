package roster

import (
	"context"
	"errors"
	"net"

	"crewbot/internal/common"
	"crewbot/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

// Anything able to fetch a url, normally a common.Proxy
type Requester interface {
	Request(ctx context.Context, url string, vital bool) ([]byte, error)
}

type endpoint struct {
	url     string
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// The client polls the region roster endpoints and the enrichment endpoint.
// Every failure is reported and folded into a false result, callers
// never see an error
type Client struct {
	requester  Requester
	order      []string
	regions    map[string]endpoint
	enrichment *endpoint
}

func NewClient(requester Requester, regions []Endpoint, enrichmentURL string, settings BreakerSettings) *Client {

	client := &Client{requester: requester, regions: make(map[string]endpoint, len(regions))}
	for _, region := range regions {
		client.order = append(client.order, region.Name)
		client.regions[region.Name] = endpoint{region.URL, newBreaker("region-"+region.Name, settings)}
	}
	if enrichmentURL != "" {
		client.enrichment = &endpoint{enrichmentURL, newBreaker("enrichment", settings)}
	}
	return client
}

// Names of the configured regions, in configuration order
func (client *Client) Regions() []string {
	return client.order
}

// Fetch the identities currently online in a region.
// The boolean is false when the state of the region is unknown for this tick,
// which is different from an empty list of identities
func (client *Client) Poll(ctx context.Context, region string) ([]OnlineIdentity, bool) {

	ep, ok := client.regions[region]
	if !ok {
		log.Error().Str("region", region).Msg("Polling a region that is not configured")
		return nil, false
	}

	data, err := ep.breaker.Execute(func() ([]byte, error) {
		return client.requester.Request(ctx, ep.url, false)
	})
	if err != nil {
		client.failed("region-"+region, err)
		return nil, false
	}

	identities, err := DecodeRoster(data, region)
	if err != nil {
		client.failed("region-"+region, err)
		return nil, false
	}
	log.Debug().Str("region", region).Int("online", len(identities)).Msg("Region polled")
	metrics.OnlineIdentities.WithLabelValues(region).Set(float64(len(identities)))
	return identities, true
}

// Fetch the enrichment mapping. False if unavailable or not configured.
// The request is not vital: while the limiter holds requests back it fails
// at once and the caller keeps its stale mapping
func (client *Client) PollEnrichment(ctx context.Context) (Enrichment, bool) {

	if client.enrichment == nil {
		return nil, false
	}

	data, err := client.enrichment.breaker.Execute(func() ([]byte, error) {
		return client.requester.Request(ctx, client.enrichment.url, false)
	})
	if err != nil {
		client.failed("enrichment", err)
		return nil, false
	}

	enrichment, err := DecodeEnrichment(data)
	if err != nil {
		client.failed("enrichment", err)
		return nil, false
	}
	log.Debug().Int("entries", len(enrichment)).Msg("Enrichment polled")
	return enrichment, true
}

func (client *Client) failed(name string, err error) {
	reason := failureReason(err)
	metrics.PollFailures.WithLabelValues(name, reason).Inc()
	log.Warn().Err(err).Str("endpoint", name).Str("reason", reason).Msg("Fetch failed, state unknown for this tick")
}

func failureReason(err error) string {
	var netErr net.Error
	switch {
	case isBreakerRejection(err):
		return "circuit_open"
	case errors.Is(err, common.ErrRequestNotAllowed):
		return "rate_limited"
	case errors.Is(err, common.ErrUnexpectedStatus):
		return "status"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	default:
		return "network"
	}
}
