// Package postprocess extracts structured side-channel data from free-text
// model output: scene status blocks, relationship score deltas, and dice
// rolls. Matching is tolerant; the model does not reliably follow
// the conventions, and a missed block simply means "no change this turn".
package postprocess

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bowerhall/reverie/internal/scene"
)

// Extraction is the normalized side-effect payload for one completion.
// Every field is independently optional: nil means the completion carried no
// such data and the caller must carry the previous state forward, never
// reset it.
type Extraction struct {
	CharacterStatus *scene.Status
	UserStatus      *scene.Status
	Relationship    *int
	Dominance       *int
	Lust            *int
	DiceRoll        *int
}

// DiceSides is the assumed scale for [DICE: N] tags; rolls outside
// 1..DiceSides are ignored as noise.
const DiceSides = 20

var (
	charBlockRe = regexp.MustCompile(`(?i)\[CHARACTER STATUS\]`)
	userBlockRe = regexp.MustCompile(`(?i)\[USER STATUS\]`)
	diceRe      = regexp.MustCompile(`(?i)\[DICE:\s*(-?\d+)\s*\]`)
	intRe       = regexp.MustCompile(`[-+]?\d+`)

	fieldRes = map[string]*regexp.Regexp{
		"location":   regexp.MustCompile(`(?i)^\s*location\s*:\s*(.+?)\s*$`),
		"appearance": regexp.MustCompile(`(?i)^\s*appearance\s*:\s*(.+?)\s*$`),
		"position":   regexp.MustCompile(`(?i)^\s*position\s*:\s*(.+?)\s*$`),
	}

	scoreRes = map[string]*regexp.Regexp{
		"relationship": regexp.MustCompile(`(?i)^\s*relationship\s*:\s*(.+?)\s*$`),
		"dominance":    regexp.MustCompile(`(?i)^\s*dominance\s*:\s*(.+?)\s*$`),
		"lust":         regexp.MustCompile(`(?i)^\s*lust\s*:\s*(.+?)\s*$`),
	}
)

// Parse walks the completion line by line, tracking which status block (if
// any) it is inside. isReroll suppresses score extraction entirely: a reroll
// discards the response the deltas belonged to, so applying them would
// double-count a turn the user threw away.
func Parse(text string, isReroll bool) *Extraction {
	ex := &Extraction{}

	// blocks: none (0), character (1), user (2)
	block := 0
	var charStatus, userStatus scene.Status
	charSeen, userSeen := false, false

	for _, line := range strings.Split(text, "\n") {
		switch {
		case charBlockRe.MatchString(line):
			block = 1
			charSeen = true
			continue
		case userBlockRe.MatchString(line):
			block = 2
			userSeen = true
			continue
		}

		if block == 0 {
			continue
		}

		target := &charStatus
		if block == 2 {
			target = &userStatus
		}

		if m := fieldRes["location"].FindStringSubmatch(line); m != nil {
			target.Location = m[1]
			continue
		}
		if m := fieldRes["appearance"].FindStringSubmatch(line); m != nil {
			target.Appearance = m[1]
			continue
		}
		if m := fieldRes["position"].FindStringSubmatch(line); m != nil {
			target.Position = m[1]
			continue
		}

		if isReroll {
			continue
		}
		for name, re := range scoreRes {
			m := re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if v, ok := firstInt(m[1]); ok {
				switch name {
				case "relationship":
					ex.Relationship = &v
				case "dominance":
					ex.Dominance = &v
				case "lust":
					ex.Lust = &v
				}
			}
		}
	}

	if charSeen {
		ex.CharacterStatus = &charStatus
	}
	if userSeen {
		ex.UserStatus = &userStatus
	}

	if m := diceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 1 && v <= DiceSides {
			ex.DiceRoll = &v
		}
	}

	return ex
}

// firstInt pulls the first signed or unsigned integer out of a line
// fragment, tolerating prose like "Relationship: +3 (she warms up)".
func firstInt(s string) (int, bool) {
	m := intRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimPrefix(m, "+"))
	if err != nil {
		return 0, false
	}
	return v, true
}
