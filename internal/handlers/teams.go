package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/pesabridge/internal/models"
	"github.com/example/pesabridge/internal/services"
)

const (
	englishLeagueID = 39
	defaultSeason   = 2023
)

type fallbackTeam struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Minimal English league set served when nothing is cached yet.
var englishLeagueTeams = []fallbackTeam{
	{ID: 33, Name: "Manchester United"},
	{ID: 50, Name: "Manchester City"},
	{ID: 49, Name: "Chelsea"},
	{ID: 40, Name: "Liverpool"},
	{ID: 42, Name: "Arsenal"},
	{ID: 47, Name: "Tottenham Hotspur"},
	{ID: 45, Name: "Everton"},
	{ID: 48, Name: "West Ham United"},
	{ID: 34, Name: "Newcastle United"},
}

// TeamsHandler serves the cached football statistics endpoints.
type TeamsHandler struct {
	db       *gorm.DB
	football *services.FootballService
}

func NewTeamsHandler(db *gorm.DB, football *services.FootballService) *TeamsHandler {
	return &TeamsHandler{db: db, football: football}
}

// ListTeams returns all cached teams, or the fallback set when the cache
// is empty.
func (h *TeamsHandler) ListTeams(c *fiber.Ctx) error {
	var teams []models.Team
	if err := h.db.WithContext(c.UserContext()).Find(&teams).Error; err != nil {
		return err
	}

	if len(teams) == 0 {
		return c.JSON(fiber.Map{"results": englishLeagueTeams})
	}
	return c.JSON(fiber.Map{"results": teams})
}

// GetTeam returns one cached team by its external id.
func (h *TeamsHandler) GetTeam(c *fiber.Ctx) error {
	teamID, err := strconv.Atoi(c.Params("teamId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "teamId parameter required")
	}

	var team models.Team
	err = h.db.WithContext(c.UserContext()).Where("team_id = ?", teamID).First(&team).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		for _, fallback := range englishLeagueTeams {
			if fallback.ID == teamID {
				return c.JSON(fiber.Map{"results": fallback, "availableTeams": englishLeagueTeams})
			}
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message":        "Team not found",
			"availableTeams": englishLeagueTeams,
		})
	}

	return c.JSON(fiber.Map{"results": team})
}

type upsertTeamRequest struct {
	TeamID   int             `json:"teamId"`
	Name     string          `json:"name"`
	Logo     string          `json:"logo"`
	LeagueID int             `json:"leagueId"`
	Season   int             `json:"season"`
	Stats    json.RawMessage `json:"stats"`
}

// UpsertTeam stores or refreshes one team record.
func (h *TeamsHandler) UpsertTeam(c *fiber.Ctx) error {
	var req upsertTeamRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.TeamID == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "teamId required")
	}

	name := req.Name
	if name == "" {
		name = "Unknown"
	}

	team, err := h.upsert(c, models.Team{
		TeamID:   req.TeamID,
		Name:     name,
		Logo:     req.Logo,
		LeagueID: req.LeagueID,
		Season:   req.Season,
		Stats:    []byte(req.Stats),
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"results": team})
}

// GetTeamScore computes a team's 0-100 score, fetching and caching stats
// from the football API when none are stored yet.
func (h *TeamsHandler) GetTeamScore(c *fiber.Ctx) error {
	teamID, err := strconv.Atoi(c.Params("teamId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "teamId parameter required")
	}

	ctx := c.UserContext()

	var team models.Team
	found := true
	if err := h.db.WithContext(ctx).Where("team_id = ?", teamID).First(&team).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		found = false
	}

	stats := team.Stats
	if len(stats) == 0 {
		season := defaultSeason
		if parsed, err := strconv.Atoi(c.Query("season")); err == nil && parsed > 0 {
			season = parsed
		}

		info, fetched, err := h.football.FetchTeamStatistics(ctx, englishLeagueID, season, teamID)
		if err != nil {
			log.Printf("[Teams] stats fetch for team %d failed: %v", teamID, err)
			if !found {
				for _, fallback := range englishLeagueTeams {
					if fallback.ID == teamID {
						return c.JSON(fiber.Map{
							"teamId":  teamID,
							"score":   0,
							"details": "No stats available; returned fallback team list",
						})
					}
				}
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Team not found"})
			}
		} else {
			if _, err := h.upsert(c, models.Team{
				TeamID:   info.ID,
				Name:     info.Name,
				Logo:     info.Logo,
				LeagueID: englishLeagueID,
				Season:   season,
				Stats:    fetched,
			}); err != nil {
				return err
			}
			stats = fetched
		}
	}

	if len(stats) == 0 {
		return c.JSON(fiber.Map{"teamId": teamID, "score": 0, "details": "No stats available"})
	}

	return c.JSON(fiber.Map{"teamId": teamID, "score": services.ComputeTeamScore(stats)})
}

// GetAllScores computes scores for every cached team.
func (h *TeamsHandler) GetAllScores(c *fiber.Ctx) error {
	var teams []models.Team
	if err := h.db.WithContext(c.UserContext()).Find(&teams).Error; err != nil {
		return err
	}

	results := make([]fiber.Map, 0, len(teams))
	for _, t := range teams {
		results = append(results, fiber.Map{
			"teamId": t.TeamID,
			"name":   t.Name,
			"score":  services.ComputeTeamScore(t.Stats),
		})
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *TeamsHandler) upsert(c *fiber.Ctx, team models.Team) (*models.Team, error) {
	ctx := c.UserContext()

	var existing models.Team
	err := h.db.WithContext(ctx).Where("team_id = ?", team.TeamID).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err := h.db.WithContext(ctx).Create(&team).Error; err != nil {
			return nil, err
		}
		return &team, nil
	}

	updates := map[string]any{
		"name":      team.Name,
		"logo":      team.Logo,
		"league_id": team.LeagueID,
		"season":    team.Season,
	}
	if len(team.Stats) > 0 {
		updates["stats"] = team.Stats
	}
	if err := h.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return nil, err
	}

	return &existing, nil
}
