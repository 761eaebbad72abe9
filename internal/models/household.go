package models

import "sort"

// Household is a shared pantry. Membership is changed only by the household
// protocols; the two points maps only ever grow.
type Household struct {
	// UID is the unique identifier for the household (UUID format).
	UID string `json:"uid" validate:"required"`

	// Name is the display name of the household (e.g., "Flat 3B").
	Name string `json:"name" validate:"required"`

	// Members are the user IDs belonging to the household.
	Members []string `json:"members"`

	// SharedRecipes are recipe IDs visible to every member.
	SharedRecipes []string `json:"sharedRecipes"`

	// RatPoints counts, per user, foreign-owned food items they consumed.
	RatPoints map[string]int64 `json:"ratPoints"`

	// StinkyPoints counts, per user, their food items thrown away spoiled.
	StinkyPoints map[string]int64 `json:"stinkyPoints"`
}

// IsMember reports whether userID belongs to the household.
func (h *Household) IsMember(userID string) bool {
	return Contains(h.Members, userID)
}

// Points is one member's standing in the points game.
type Points struct {
	UserID string `json:"userId"`
	Rat    int64  `json:"ratPoints"`
	Stinky int64  `json:"stinkyPoints"`
}

// Board returns every member's points, highest rat points first.
// Absent map keys count as zero.
func (h *Household) Board() []Points {
	board := make([]Points, 0, len(h.Members))
	for _, m := range h.Members {
		board = append(board, Points{
			UserID: m,
			Rat:    h.RatPoints[m],
			Stinky: h.StinkyPoints[m],
		})
	}
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Rat != board[j].Rat {
			return board[i].Rat > board[j].Rat
		}
		return board[i].UserID < board[j].UserID
	})
	return board
}
