package roster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"crewbot/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	proxy := common.NewProxy(nil, 100*time.Millisecond, nil)
	regions := []Endpoint{
		{Name: "EU", URL: srv.URL + "/eu"},
		{Name: "NA", URL: srv.URL + "/na"},
		{Name: "OC", URL: srv.URL + "/oc"},
	}
	return NewClient(proxy, regions, srv.URL+"/enrichment", BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour})
}

func TestClientPoll(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eu":
			w.Write([]byte(`[{"identity_id": "42", "display_name": "Alice"}]`))
		case "/na":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	ctx := context.Background()

	assert.Equal(t, []string{"EU", "NA", "OC"}, client.Regions())

	identities, ok := client.Poll(ctx, "EU")
	require.True(t, ok)
	assert.Equal(t, []OnlineIdentity{{RawID: "42", DisplayName: "Alice", Region: "EU"}}, identities)

	identities, ok = client.Poll(ctx, "NA")
	require.True(t, ok, "an empty roster is a known state")
	assert.Empty(t, identities)

	identities, ok = client.Poll(ctx, "OC")
	assert.False(t, ok)
	assert.Nil(t, identities)

	_, ok = client.Poll(ctx, "XX")
	assert.False(t, ok)
}

func TestClientPollMalformedAndTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eu":
			w.Write([]byte(`not json`))
		case "/na":
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(`[]`))
		}
	})

	_, ok := client.Poll(context.Background(), "EU")
	assert.False(t, ok)
	_, ok = client.Poll(context.Background(), "NA")
	assert.False(t, ok)
}

func TestClientBreakerOpensPerRegion(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oc" {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, ok := client.Poll(ctx, "OC")
		assert.False(t, ok)
	}
	assert.Equal(t, int32(2), hits.Load(), "open breaker stops hitting the region")

	_, ok := client.Poll(ctx, "EU")
	assert.True(t, ok, "other regions are not affected")
}

func TestClientPollEnrichment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Alice": {"tier_flags": ["member"]}}`))
	})

	enrichment, ok := client.PollEnrichment(context.Background())
	require.True(t, ok)
	assert.Contains(t, enrichment, "Alice")

	disabled := NewClient(common.NewProxy(nil, time.Second, nil), nil, "", BreakerSettings{ConsecutiveFailures: 1, OpenTimeout: time.Second})
	_, ok = disabled.PollEnrichment(context.Background())
	assert.False(t, ok)
}
