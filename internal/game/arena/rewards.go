package arena

import (
	"math"

	"github.com/cory-johannsen/classquest/internal/game/bestiary"
)

// Outcome is the result of an end-condition check.
type Outcome string

const (
	OutcomeNone    Outcome = "none"
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
)

// Evaluate reports victory when no monster is alive, defeat when no
// participant is alive, and none otherwise. Victory wins a tie.
func Evaluate(enc *Encounter) Outcome {
	if len(enc.LivingMonsters()) == 0 {
		return OutcomeVictory
	}
	if len(enc.LivingParticipants()) == 0 {
		return OutcomeDefeat
	}
	return OutcomeNone
}

// Reward is what one student earned from an encounter.
type Reward struct {
	XP        int  `json:"xp"`
	Gold      int  `json:"gold"`
	LeveledUp bool `json:"leveled_up"`
	NewLevel  int  `json:"new_level"`
}

// RewardRules are the base amounts the multipliers scale.
type RewardRules struct {
	XPPerRound            int
	GoldPerRound          int
	ConsolationXPPerRound int
	MinConsolationXP      int
}

// DefaultRewardRules returns 10 xp and 5 gold per round, and a defeat
// consolation of max(10, 10 × rounds).
func DefaultRewardRules() RewardRules {
	return RewardRules{XPPerRound: 10, GoldPerRound: 5, ConsolationXPPerRound: 10, MinConsolationXP: 10}
}

// ComputeRewards prices an ended encounter for every participant, keyed by
// student id. LeveledUp and NewLevel are left for the leveling service.
//
// Victory: xp = floor(XPPerRound × rounds × xp_mult × f), gold likewise with
// gold_mult, where f is 1.5 for survivors and 0.5 for the fallen.
// Defeat: xp = max(MinConsolationXP, ConsolationXPPerRound × rounds), no gold.
//
// Precondition: outcome is OutcomeVictory or OutcomeDefeat.
func ComputeRewards(enc *Encounter, cfg *bestiary.DifficultyConfig, outcome Outcome, rules RewardRules) map[string]Reward {
	out := make(map[string]Reward, len(enc.Participants))
	rounds := float64(enc.Round)
	for _, p := range enc.Participants {
		if outcome == OutcomeDefeat {
			xp := rules.ConsolationXPPerRound * enc.Round
			if xp < rules.MinConsolationXP {
				xp = rules.MinConsolationXP
			}
			out[p.StudentID] = Reward{XP: xp}
			continue
		}
		f := 0.5
		if p.Alive {
			f = 1.5
		}
		out[p.StudentID] = Reward{
			XP:   int(math.Floor(float64(rules.XPPerRound) * rounds * cfg.XPMultiplier * f)),
			Gold: int(math.Floor(float64(rules.GoldPerRound) * rounds * cfg.GoldMultiplier * f)),
		}
	}
	return out
}
