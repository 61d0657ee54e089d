package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// The payload could not be understood
var ErrMalformedPayload = errors.New("malformed payload")

// Decode the payload of a region endpoint.
// Entries without an identity are skipped, and when the same identity
// appears twice only the first occurrence is kept
func DecodeRoster(data []byte, region string) ([]OnlineIdentity, error) {

	var raw []struct {
		IdentityId  string `json:"identity_id"`
		DisplayName string `json:"display_name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: roster of region %s: %w", ErrMalformedPayload, region, err)
	}

	identities := make([]OnlineIdentity, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, entry := range raw {
		id := strings.TrimSpace(entry.IdentityId)
		if id == "" {
			log.Warn().Str("region", region).Str("name", entry.DisplayName).Msg("Skipping roster entry without identity")
			continue
		}
		if _, ok := seen[id]; ok {
			log.Debug().Str("region", region).Str("uid", id).Msg("Duplicate identity in roster")
			continue
		}
		seen[id] = struct{}{}
		identities = append(identities, OnlineIdentity{RawID: id, DisplayName: entry.DisplayName, Region: region})
	}

	return identities, nil
}

func DecodeEnrichment(data []byte) (Enrichment, error) {

	var enrichment Enrichment
	if err := json.Unmarshal(data, &enrichment); err != nil {
		return nil, fmt.Errorf("%w: enrichment: %w", ErrMalformedPayload, err)
	}
	if enrichment == nil {
		return nil, fmt.Errorf("%w: enrichment is null", ErrMalformedPayload)
	}
	return enrichment, nil
}
