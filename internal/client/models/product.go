// Package models defines the client-side record types held in the local
// store and the wire shapes exchanged with the remote API.
package models

import "time"

// Product is a catalog record in the local store.
//
// Exactly one of the two states holds at any time:
//   - local draft: Local == true, Synced == false, ServerID == nil
//   - confirmed:   Synced == true, ServerID set
//
// A product transitions draft -> confirmed exactly once and never back.
type Product struct {
	ID          string     `json:"id"`
	ServerID    *string    `json:"serverId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Photo       []byte     `json:"photo,omitempty"`
	Lat         *float64   `json:"lat"`
	Lon         *float64   `json:"lon"`
	CreatedAt   time.Time  `json:"createdAt"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty"`
	Synced      bool       `json:"synced"`
	Local       bool       `json:"local"`
}

// ProductPatch carries the updatable fields of a product. Nil fields are
// left untouched.
type ProductPatch struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Photo       []byte   `json:"photo,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}
