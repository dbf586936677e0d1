package entities

// ReferenceRecord tracks one issued ephemeral local reference. Records are
// flipped to Expired once, by the first sweep after a restart, and never
// deleted.
type ReferenceRecord struct {
	Handle           string `json:"handle"`
	CreatedAtEpochMs int64  `json:"createdAtEpochMs"`
	Expired          bool   `json:"expired"`
	OwnerContext     string `json:"ownerContext,omitempty"`
}

// Listing is the denormalized listing record cached for offline display.
// Images hold serialized Representations.
type Listing struct {
	ID     string   `json:"id" validate:"required,max=64"`
	Title  string   `json:"title" validate:"required,max=255"`
	Images []string `json:"images" validate:"max=32"`
}

// ImageView is one listing image ready for display. Src is what a card puts in
// its src attribute; Stored is the cleaned persisted value.
type ImageView struct {
	Kind    string `json:"kind"`
	Src     string `json:"src"`
	Stored  string `json:"stored"`
	Expired bool   `json:"expired,omitempty"`
}

type ListingView struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Images []ImageView `json:"images"`
}
