// Package models defines the aggregates shared by a household: users,
// households, invitations and food items, plus the read-only recipe input
// consumed by recipe execution.
//
// # Aggregates
//
// Each aggregate is an independently addressed document in the backing store:
//   - User: owned by the user facade, created on first sign-in
//   - Household: membership and the rat/stinky points maps
//   - Invitation: consumed exactly once by accept or decline
//   - FoodItem: lives in exactly one household's foodItems sub-collection
//
// # Design Principles
//
//  1. Relationships are ID strings, never pointers
//  2. Set-valued fields are slices mutated only through array-union/remove
//  3. JSON tags match the stored document field names
//  4. Absent point-map keys read as zero
package models
