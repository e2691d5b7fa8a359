package domain

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// Player is one participant's scoring record in a match.
type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
	Score    int    `json:"score"`
}

// Match is a tracked game session stored at matches/{id}.
//
// Active is false exactly when FinishedAt is set. Ending is one-way.
type Match struct {
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title"`
	GameTitle  string    `json:"gameTitle"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  Timestamp `json:"createdAt"`
	FinishedAt Timestamp `json:"finishedAt"`
	Players    []Player  `json:"players"`
	Active     bool      `json:"active"`
}

// NewMatch creates an active match with creator as its only player.
func NewMatch(id, title, gameTitle string, creator Profile) Match {
	return Match{
		ID:        id,
		Title:     title,
		GameTitle: gameTitle,
		CreatedBy: creator.ID,
		CreatedAt: Now(),
		Players:   []Player{creator.AsPlayer()},
		Active:    true,
	}
}

// HasPlayer reports whether userID plays in the match.
func (m Match) HasPlayer(userID string) bool {
	return slices.ContainsFunc(m.Players, func(p Player) bool { return p.ID == userID })
}

// Player returns the entry for userID.
func (m Match) Player(userID string) (Player, bool) {
	i := slices.IndexFunc(m.Players, func(p Player) bool { return p.ID == userID })
	if i < 0 {
		return Player{}, false
	}
	return m.Players[i], true
}

// WithPlayer appends p. The second result is false when p already plays and nothing changed.
func (m Match) WithPlayer(p Player) (Match, bool) {
	if m.HasPlayer(p.ID) {
		return m, false
	}
	p.Score = 0
	m.Players = append(slices.Clone(m.Players), p)
	return m, true
}

// WithoutPlayer removes userID from the roster.
func (m Match) WithoutPlayer(userID string) Match {
	m.Players = slices.DeleteFunc(slices.Clone(m.Players), func(p Player) bool { return p.ID == userID })
	return m
}

// WithScoreDelta adds delta to a player's score, flooring at 0.
// The second result is false when the player is not in the match.
func (m Match) WithScoreDelta(userID string, delta int) (Match, bool) {
	i := slices.IndexFunc(m.Players, func(p Player) bool { return p.ID == userID })
	if i < 0 {
		return m, false
	}
	players := slices.Clone(m.Players)
	players[i].Score = max(0, players[i].Score+delta)
	m.Players = players
	return m, true
}

// WithScoresReset sets every score to 0.
func (m Match) WithScoresReset() Match {
	players := slices.Clone(m.Players)
	for i := range players {
		players[i].Score = 0
	}
	m.Players = players
	return m
}

// Ended returns the match finished at the given time.
func (m Match) Ended(at Timestamp) Match {
	m.Active = false
	m.FinishedAt = at
	return m
}

// Standings returns the players ordered by score, highest first. Ties keep roster order.
func (m Match) Standings() []Player {
	out := slices.Clone(m.Players)
	slices.SortStableFunc(out, func(a, b Player) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

// Leader returns the player with the highest score; the earliest one wins ties.
func (m Match) Leader() (Player, bool) {
	if len(m.Players) == 0 {
		return Player{}, false
	}
	leader := m.Players[0]
	for _, p := range m.Players[1:] {
		if p.Score > leader.Score {
			leader = p
		}
	}
	return leader, true
}

// Winner is the leader of a match someone actually scored in.
func (m Match) Winner() (Player, bool) {
	leader, ok := m.Leader()
	if !ok || leader.Score == 0 {
		return Player{}, false
	}
	return leader, true
}

// Duration is the time between creation and finish. Unfinished or inverted matches last 0.
func (m Match) Duration() time.Duration {
	if !m.CreatedAt.IsSet() || !m.FinishedAt.IsSet() {
		return 0
	}
	d := m.FinishedAt.Sub(m.CreatedAt.Time)
	if d < 0 {
		return 0
	}
	return d
}

// FormatDuration renders d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// SortByCreated orders active matches oldest first.
func SortByCreated(matches []Match) {
	slices.SortStableFunc(matches, func(a, b Match) int {
		return a.CreatedAt.Compare(b.CreatedAt.Time)
	})
}

// SortByFinished orders ended matches most recently finished first.
func SortByFinished(matches []Match) {
	slices.SortStableFunc(matches, func(a, b Match) int {
		return b.FinishedAt.Compare(a.FinishedAt.Time)
	})
}
