package roster

import "fmt"

// An identity reported online by one region during one poll
type OnlineIdentity struct {
	RawID       string
	DisplayName string
	Region      string
}

// Side channel data about a display name
type Metadata struct {
	TierFlags []string `json:"tier_flags"`
}

// Enrichment maps display names to their metadata
type Enrichment map[string]Metadata

// An upstream roster endpoint
type Endpoint struct {
	Name string
	URL  string
}

func (identity OnlineIdentity) String() string {
	return fmt.Sprintf("%s (%s) in %s", identity.DisplayName, identity.RawID, identity.Region)
}
