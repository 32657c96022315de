package domain

import (
	"fmt"
	"strings"
)

type Side string

const (
	SideAttack  Side = "attack"
	SideDefense Side = "defense"
)

func (s Side) Valid() bool {
	return s == SideAttack || s == SideDefense
}

// Opposite returns the other side of the battle.
func (s Side) Opposite() Side {
	if s == SideAttack {
		return SideDefense
	}
	return SideAttack
}

type Outcome string

const (
	OutcomeWin  Outcome = "Win"
	OutcomeLose Outcome = "Lose"
)

// Origin tags which deployment produced a record.
type Origin string

const (
	OriginSelfHosted Origin = "self-hosted"
	OriginFederated  Origin = "federated"
)

// legacy labels written by older deployments
var originLabels = map[string]Origin{
	"限定": OriginSelfHosted,
	"一般": OriginFederated,
}

// ParseOrigin accepts canonical and legacy origin labels. An empty label is
// treated as federated, which is what a peer push without a tag means.
func ParseOrigin(label string) (Origin, error) {
	label = strings.TrimSpace(label)
	switch Origin(label) {
	case OriginSelfHosted, OriginFederated:
		return Origin(label), nil
	case "":
		return OriginFederated, nil
	}
	if o, ok := originLabels[label]; ok {
		return o, nil
	}
	return "", fmt.Errorf("unknown origin %q", label)
}

const CompositionSize = 6

// MainSlots is the number of positional slots at the front of a composition.
const MainSlots = 4

// Composition is four main slots followed by two special slots.
type Composition [CompositionSize]string

// Team is one side of a battle as it was logged.
type Team struct {
	Player     string
	Outcome    Outcome
	Characters Composition
}

// BattleRecord is immutable once created; caches share records by value.
type BattleRecord struct {
	Date     string
	Attacker Team
	Defender Team
	Origin   Origin
	Season   string
}

func (r BattleRecord) Team(side Side) Team {
	if side == SideDefense {
		return r.Defender
	}
	return r.Attacker
}

// LosingSide reports the side marked Lose. Records with both or neither side
// marked Lose are malformed and report ok=false.
func (r BattleRecord) LosingSide() (Side, bool) {
	attackLost := r.Attacker.Outcome == OutcomeLose
	defenseLost := r.Defender.Outcome == OutcomeLose
	switch {
	case attackLost && !defenseLost:
		return SideAttack, true
	case defenseLost && !attackLost:
		return SideDefense, true
	}
	return "", false
}

type Character struct {
	Name string `json:"name"`
	Icon string `json:"image"`
}

// IconMap maps a category key (see the Icon* constants) to an icon reference.
type IconMap map[string]string

const (
	IconWin     = "勝ち"
	IconLose    = "負け"
	IconAttack  = "攻撃側"
	IconDefense = "防衛側"
)

func (m IconMap) Get(key string) string {
	return m[key]
}

func (m IconMap) SideIcon(side Side) string {
	if side == SideDefense {
		return m[IconDefense]
	}
	return m[IconAttack]
}

// MatchResult pairs a composition that lost with the composition that beat it.
type MatchResult struct {
	Origin            Origin      `json:"source"`
	WinnerSide        Side        `json:"winner_type"`
	WinnerIcon        string      `json:"winner_icon"`
	WinnerOutcomeIcon string      `json:"winner_winlose_icon"`
	WinnerPlayer      string      `json:"winner_player"`
	WinnerCharacters  Composition `json:"winner_characters"`
	LoserSide         Side        `json:"loser_type"`
	LoserIcon         string      `json:"loser_icon"`
	LoserOutcomeIcon  string      `json:"loser_winlose_icon"`
	LoserPlayer       string      `json:"loser_player"`
	LoserCharacters   Composition `json:"loser_characters"`
	Date              string      `json:"date"`
}

type CharacterIcon struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// LossDigest is the compact view of one losing composition.
type LossDigest struct {
	Date       string                         `json:"date"`
	Origin     Origin                         `json:"source"`
	Side       Side                           `json:"side"`
	Player     string                         `json:"player"`
	Characters [CompositionSize]CharacterIcon `json:"characters"`
}
