package models

// Team caches a football team's info and the raw statistics payload
// returned by the external football API.
type Team struct {
	BaseModel
	TeamID   int    `gorm:"column:team_id;uniqueIndex" json:"teamId"`
	Name     string `json:"name"`
	Logo     string `json:"logo"`
	LeagueID int    `gorm:"column:league_id" json:"leagueId"`
	Season   int    `json:"season"`
	Stats    []byte `gorm:"type:jsonb" json:"stats"`
}
