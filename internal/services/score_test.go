package services

import "testing"

func TestComputeTeamScore(t *testing.T) {
	stats := []byte(`{
		"form": "WWDLW",
		"fixtures": {
			"played": {"total": 10},
			"wins": {"total": 5}
		},
		"goals": {
			"for": {"total": {"home": 7, "away": 8, "total": 15}},
			"against": {"total": {"home": 6, "away": 4, "total": 10}}
		},
		"clean_sheet": {"total": 3}
	}`)

	// win rate 0.5 -> 25, gd 0.5/match -> 12.5, clean sheets 0.3 -> 6,
	// form 10 points of 30 -> 3.33; rounds to 47.
	if got := ComputeTeamScore(stats); got != 47 {
		t.Fatalf("ComputeTeamScore = %d, want 47", got)
	}
}

func TestComputeTeamScorePerfectSeason(t *testing.T) {
	stats := []byte(`{
		"form": "WWWWWWWWWW",
		"fixtures": {
			"played": {"total": 10},
			"wins": {"total": 10}
		},
		"goals": {
			"for": {"total": 30},
			"against": {"total": 0}
		},
		"clean_sheet": {"total": 10}
	}`)

	if got := ComputeTeamScore(stats); got != 100 {
		t.Fatalf("ComputeTeamScore = %d, want 100", got)
	}
}

func TestComputeTeamScoreDegenerateInput(t *testing.T) {
	cases := map[string][]byte{
		"empty object": []byte(`{}`),
		"invalid json": []byte(`{not json`),
		"nil payload":  nil,
		"no fixtures":  []byte(`{"form": ""}`),
		"zero played":  []byte(`{"fixtures": {"played": {"total": 0}, "wins": {"total": 0}}}`),
		"wrong shapes": []byte(`{"fixtures": "oops", "goals": 3, "form": 7}`),
	}

	for name, stats := range cases {
		if got := ComputeTeamScore(stats); got != 0 {
			t.Errorf("%s: ComputeTeamScore = %d, want 0", name, got)
		}
	}
}
