package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const footballAPIBaseURL = "https://v3.football.api-sports.io"

// TeamInfo is the team identity extracted from a statistics response.
type TeamInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

// FootballConfig holds the API-Sports credentials.
type FootballConfig struct {
	APIKey  string
	BaseURL string // overrides the default host, used in tests
}

// FootballService fetches team statistics from the API-Sports football API.
type FootballService struct {
	cfg        FootballConfig
	baseURL    string
	httpClient *http.Client
}

func NewFootballService(cfg FootballConfig) *FootballService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = footballAPIBaseURL
	}

	return &FootballService{
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchTeamStatistics returns the team identity and the raw statistics
// payload for one team in one league season.
func (s *FootballService) FetchTeamStatistics(ctx context.Context, leagueID, season, teamID int) (*TeamInfo, []byte, error) {
	url := fmt.Sprintf("%s/teams/statistics?league=%d&season=%d&team=%d", s.baseURL, leagueID, season, teamID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("football stats request build: %w", err)
	}
	req.Header.Set("x-apisports-key", s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("football stats request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("football stats failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("football stats unmarshal: %w", err)
	}

	stats := []byte(envelope.Response)
	if len(stats) == 0 || string(stats) == "null" || string(stats) == "[]" {
		return nil, nil, fmt.Errorf("football stats: empty response for team %d", teamID)
	}

	var parsed struct {
		Team TeamInfo `json:"team"`
	}
	_ = json.Unmarshal(stats, &parsed)

	info := parsed.Team
	if info.ID == 0 {
		info.ID = teamID
	}
	if info.Name == "" {
		info.Name = "Unknown"
	}

	return &info, stats, nil
}
