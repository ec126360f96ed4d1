package model

import "time"

// Leaderboard is a named group of participants competing on points.
// AdminID is the only user allowed to change membership or adjust points by hand.
type Leaderboard struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	AdminID      string        `json:"adminId"`
	Participants []Participant `json:"participants"` // roster order
	CreatedAt    time.Time     `json:"createdAt"`
}

// Participant is one roster entry. Entries are keyed by UserID; DisplayName is
// read from the users table every time so renames show up immediately.
type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"name"`
	Points      int    `json:"points"`
}

// Standing is a participant with its rank. Equal points share a rank.
type Standing struct {
	Rank int `json:"rank"`
	Participant
}

// ParticipantsNamed returns the roster entries whose display name equals name
// exactly (case-sensitive). More than one match means a rename made the name
// ambiguous on this roster.
func (lb *Leaderboard) ParticipantsNamed(name string) []Participant {
	var matches []Participant
	for _, p := range lb.Participants {
		if p.DisplayName == name {
			matches = append(matches, p)
		}
	}
	return matches
}

// HasMember reports whether userID is on the roster.
func (lb *Leaderboard) HasMember(userID string) bool {
	for _, p := range lb.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
