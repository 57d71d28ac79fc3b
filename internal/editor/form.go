package editor

import (
	"strings"

	"portfolioalerts/internal/models"
)

// Field identifiers are namespaced by abbreviation so two coins never share
// an id.
func GroupName(abbreviation string) string { return "alert-" + abbreviation }

func RadioID(abbreviation, direction string) string {
	return "alert-" + abbreviation + "-" + direction
}

func ValueID(abbreviation string) string { return "alert-value-" + abbreviation }

// CoinForm is one rendered form group.
type CoinForm struct {
	Coin      models.OwnedCoin
	GroupName string
	MoreID    string
	LessID    string
	ValueID   string
	Direction string // "", "more" or "less"
	Value     string
}

// input is what the user typed for one coin. It lives in the session so it
// survives re-renders caused by searching.
type input struct {
	direction string
	value     string
}

// session is the state of one open editor. It is created by Open and
// dropped by Close.
type session struct {
	coins  []models.OwnedCoin
	inputs map[string]*input
	query  string
}

// newSession keeps the first coin for every abbreviation and drops coins
// without one, reporting what it dropped.
func newSession(coins []models.OwnedCoin) (*session, []models.OwnedCoin) {
	s := &session{inputs: make(map[string]*input)}
	seen := make(map[string]bool, len(coins))
	var rejected []models.OwnedCoin

	for _, c := range coins {
		key := strings.ToLower(strings.TrimSpace(c.Abbreviation))
		if key == "" || seen[key] {
			rejected = append(rejected, c)
			continue
		}
		seen[key] = true
		s.coins = append(s.coins, c)
	}
	return s, rejected
}

func (s *session) inputFor(abbreviation string) *input {
	in, ok := s.inputs[abbreviation]
	if !ok {
		in = &input{}
		s.inputs[abbreviation] = in
	}
	return in
}

func (s *session) find(abbreviation string) (models.OwnedCoin, bool) {
	for _, c := range s.coins {
		if c.Abbreviation == abbreviation {
			return c, true
		}
	}
	return models.OwnedCoin{}, false
}

func (s *session) render() []CoinForm {
	visible := Filter(s.coins, s.query)
	forms := make([]CoinForm, 0, len(visible))
	for _, c := range visible {
		f := CoinForm{
			Coin:      c,
			GroupName: GroupName(c.Abbreviation),
			MoreID:    RadioID(c.Abbreviation, models.AlertMore),
			LessID:    RadioID(c.Abbreviation, models.AlertLess),
			ValueID:   ValueID(c.Abbreviation),
		}
		if in, ok := s.inputs[c.Abbreviation]; ok {
			f.Direction = in.direction
			f.Value = in.value
		}
		forms = append(forms, f)
	}
	return forms
}
