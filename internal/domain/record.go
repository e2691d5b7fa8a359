package domain

// HeadToHead summarizes ended matches two users played together.
type HeadToHead struct {
	FriendID        string `json:"friend_id"`
	Confrontations  int    `json:"confrontations"`
	MyVictories     int    `json:"my_victories"`
	FriendVictories int    `json:"friend_victories"`
}

// ComputeHeadToHead counts the ended matches in history that both me and friend played.
// A match whose top score is 0 has no winner and counts for nobody.
func ComputeHeadToHead(history []Match, me, friend string) HeadToHead {
	h := HeadToHead{FriendID: friend}
	for _, m := range history {
		if m.Active || !m.HasPlayer(me) || !m.HasPlayer(friend) {
			continue
		}
		h.Confrontations++
		winner, ok := m.Winner()
		if !ok {
			continue
		}
		switch winner.ID {
		case me:
			h.MyVictories++
		case friend:
			h.FriendVictories++
		}
	}
	return h
}

// UserStats summarizes one user's matches.
type UserStats struct {
	Active     int     `json:"active"`
	Played     int     `json:"played"`
	Wins       int     `json:"wins"`
	WinRate    float64 `json:"win_rate"`
	TotalScore int     `json:"total_score"`
}

// ComputeUserStats derives statistics for userID. Played counts ended matches only.
func ComputeUserStats(matches, history []Match, userID string) UserStats {
	var s UserStats
	for _, m := range matches {
		if m.Active && m.HasPlayer(userID) {
			s.Active++
		}
	}
	for _, m := range history {
		p, ok := m.Player(userID)
		if m.Active || !ok {
			continue
		}
		s.Played++
		s.TotalScore += p.Score
		if winner, ok := m.Winner(); ok && winner.ID == userID {
			s.Wins++
		}
	}
	if s.Played > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Played)
	}
	return s
}
