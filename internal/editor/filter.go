package editor

import (
	"strings"

	"portfolioalerts/internal/models"
)

// Filter returns the coins whose name or abbreviation contains query,
// ignoring case, in their original order. An empty query keeps every coin.
func Filter(coins []models.OwnedCoin, query string) []models.OwnedCoin {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.OwnedCoin, 0, len(coins))
	for _, c := range coins {
		if q == "" ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Abbreviation), q) {
			out = append(out, c)
		}
	}
	return out
}
