package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Metadata is a relay's NIP-11 information document, fetched over plain
// HTTP(S) by requesting the relay's own URL with an
// Accept: application/nostr+json header.
type Metadata struct {
	Name          string   `json:"name,omitempty"`
	Description   string   `json:"description,omitempty"`
	Pubkey        string   `json:"pubkey,omitempty"`
	Contact       string   `json:"contact,omitempty"`
	SupportedNIPs []int    `json:"supported_nips,omitempty"`
	Software      string   `json:"software,omitempty"`
	Version       string   `json:"version,omitempty"`
	Limitation    *Limits  `json:"limitation,omitempty"`
}

// Limits captures the subset of NIP-11's optional "limitation" object
// relevant to a client deciding how hard to push a relay.
type Limits struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	MaxSubscriptions int  `json:"max_subscriptions,omitempty"`
	MaxFilters       int  `json:"max_filters,omitempty"`
	MaxLimit         int  `json:"max_limit,omitempty"`
	AuthRequired     bool `json:"auth_required,omitempty"`
	PaymentRequired  bool `json:"payment_required,omitempty"`
}

// FetchMetadata retrieves and caches the relay's NIP-11 document. wss://
// and ws:// URLs are rewritten to https:// and http:// respectively per
// the NIP. Subsequent calls return the cached copy without a new
// request; concurrent first calls are collapsed into a single HTTP
// round trip via singleflight, so a burst of callers asking about the
// same relay at startup doesn't produce a burst of identical requests.
func (r *Relay) FetchMetadata(ctx context.Context) (*Metadata, error) {
	r.mu.Lock()
	if r.cachedMetadata != nil {
		m := r.cachedMetadata
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	v, err, _ := r.metadataGroup.Do(r.URL, func() (interface{}, error) {
		return r.fetchMetadataOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

func (r *Relay) fetchMetadataOnce(ctx context.Context) (*Metadata, error) {
	httpURL := toHTTPURL(r.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/nostr+json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay: nip-11 request to %s returned %s", httpURL, resp.Status)
	}

	var m Metadata
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("relay: decoding nip-11 document: %w", err)
	}

	r.mu.Lock()
	r.cachedMetadata = &m
	r.mu.Unlock()
	return &m, nil
}

// SupportsNIP reports whether the relay's cached NIP-11 document (fetch
// it first with FetchMetadata) advertises support for NIP number n.
func (r *Relay) SupportsNIP(n int) bool {
	r.mu.Lock()
	m := r.cachedMetadata
	r.mu.Unlock()
	if m == nil {
		return false
	}
	for _, supported := range m.SupportedNIPs {
		if supported == n {
			return true
		}
	}
	return false
}

func toHTTPURL(relayURL string) string {
	switch {
	case strings.HasPrefix(relayURL, "wss://"):
		return "https://" + strings.TrimPrefix(relayURL, "wss://")
	case strings.HasPrefix(relayURL, "ws://"):
		return "http://" + strings.TrimPrefix(relayURL, "ws://")
	default:
		return relayURL
	}
}
