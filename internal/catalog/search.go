package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appLog "slotbot/internal/log"
)

// Candidate is one entry of the event-search response.
type Candidate struct {
	SportName     string   `json:"sport_name"`
	FacilityNames []string `json:"facility_name"`
	// FromDate is the ISO-8601 start instant, e.g. "2026-03-03T17:15:00Z".
	FromDate   string `json:"from_date"`
	SignUpFrom int64  `json:"oe_from_date_stamp"`
	SignUpTo   int64  `json:"to_date_stamp"`
	URL        string `json:"url"`
}

// StartAt parses FromDate.
func (c Candidate) StartAt() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(c.FromDate))
	if err != nil {
		return time.Time{}, fmt.Errorf("candidate %q: bad from_date %q: %w", c.SportName, c.FromDate, err)
	}
	return t, nil
}

type searchResponse struct {
	Results []Candidate `json:"results"`
}

// Search lists the catalog's upcoming events for a weekday filter ID.
func (c *Client) Search(ctx context.Context, weekdayID int) ([]Candidate, error) {
	url := c.weekdayURL(weekdayID)
	body, fromCache, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("catalog: decode json response: %w", err)
	}
	appLog.Debug("catalog search", "weekday_id", weekdayID, "results", len(resp.Results), "from_cache", fromCache)
	return resp.Results, nil
}

func (c *Client) weekdayURL(weekdayID int) string {
	sep := "&"
	if !strings.Contains(c.searchURL, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%sf[0]=weekday:%d", c.searchURL, sep, weekdayID)
}
