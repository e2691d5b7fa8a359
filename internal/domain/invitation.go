package domain

// InvitationType distinguishes friendship offers from match offers.
type InvitationType string

const (
	InvitationFriend InvitationType = "Friend"
	InvitationMatch  InvitationType = "Match"
)

// Valid reports whether t is a known invitation type.
func (t InvitationType) Valid() bool {
	return t == InvitationFriend || t == InvitationMatch
}

// Invitation is a pending offer addressed to one user, stored at
// invitations_sent/{inviteeID}/invitations/{id}.
type Invitation struct {
	ID         string         `json:"id,omitempty"`
	Type       InvitationType `json:"type"`
	InvitedBy  Profile        `json:"invitedBy"`
	SentAt     Timestamp      `json:"sentAt"`
	MatchID    string         `json:"matchId,omitempty"`
	MatchTitle string         `json:"matchTitle,omitempty"`
	GameTitle  string         `json:"gameTitle,omitempty"`
}

// NewFriendInvitation creates a friendship invitation from inviter.
func NewFriendInvitation(id string, inviter Profile) Invitation {
	return Invitation{
		ID:        id,
		Type:      InvitationFriend,
		InvitedBy: inviter.Snapshot(),
		SentAt:    Now(),
	}
}

// NewMatchInvitation creates an invitation to join m.
func NewMatchInvitation(id string, inviter Profile, m Match) Invitation {
	return Invitation{
		ID:         id,
		Type:       InvitationMatch,
		InvitedBy:  inviter.Snapshot(),
		SentAt:     Now(),
		MatchID:    m.ID,
		MatchTitle: m.Title,
		GameTitle:  m.GameTitle,
	}
}
