package services

import (
	"encoding/json"
	"math"
	"strings"
)

// ComputeTeamScore turns a raw statistics payload into a 0-100 score:
// win rate contributes up to 50 points, goal difference per match 20,
// clean sheet rate 20 and recent form 10.
func ComputeTeamScore(rawStats []byte) int {
	var stats map[string]any
	if err := json.Unmarshal(rawStats, &stats); err != nil || stats == nil {
		return 0
	}

	played := digNumber(stats, "fixtures", "played", "total")
	wins := digNumber(stats, "fixtures", "wins", "total")
	goalsFor := digNumber(stats, "goals", "for", "total")
	goalsAgainst := digNumber(stats, "goals", "against", "total")
	cleanSheet := digNumber(stats, "clean_sheet", "total")
	form := digString(stats, "form")

	var winScore, gdScore, cleanScore float64
	if played > 0 {
		winScore = clamp01(wins/played) * 50

		gdPerMatch := (goalsFor - goalsAgainst) / played
		gdScore = clamp01((gdPerMatch+2)/4) * 20

		cleanScore = clamp01(cleanSheet/played) * 20
	}

	// Last 10 results: W=3 points, D=1, max 30.
	var formScore float64
	if form != "" {
		recent := form
		if len(recent) > 10 {
			recent = recent[len(recent)-10:]
		}
		points := 0
		for _, r := range strings.ToUpper(recent) {
			switch r {
			case 'W':
				points += 3
			case 'D':
				points++
			}
		}
		formScore = math.Min(float64(points)/30, 1) * 10
	}

	score := int(math.Round(winScore + gdScore + cleanScore + formScore))
	if score > 100 {
		return 100
	}
	return score
}

// digNumber walks nested maps by key and returns the numeric leaf. A map
// leaf falls through to its "total" field, matching the API's nested
// goal totals.
func digNumber(stats map[string]any, keys ...string) float64 {
	current := any(stats)
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return 0
		}
		current = m[key]
	}

	switch v := current.(type) {
	case float64:
		return v
	case map[string]any:
		if total, ok := v["total"].(float64); ok {
			return total
		}
	}
	return 0
}

func digString(stats map[string]any, keys ...string) string {
	current := any(stats)
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[key]
	}
	s, _ := current.(string)
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
