package entity

import "time"

type ProductImage struct {
	ID           string `json:"id" firestore:"id"`
	URL          string `json:"url" firestore:"url"`
	DisplayOrder int    `json:"display_order" firestore:"displayOrder"`
}

type Product struct {
	ID          string         `json:"id" firestore:"id"`
	ArtisanID   string         `json:"artisan_id" firestore:"artisanId"`
	ArtisanName string         `json:"artisan_name" firestore:"artisanName"`
	Name        string         `json:"name" firestore:"name"`
	Description string         `json:"description" firestore:"description"`
	Category    string         `json:"category" firestore:"category"`
	Price       float64        `json:"price" firestore:"price"`
	Materials   string         `json:"materials,omitempty" firestore:"materials,omitempty"`
	Dimensions  string         `json:"dimensions,omitempty" firestore:"dimensions,omitempty"`
	Location    string         `json:"location,omitempty" firestore:"location,omitempty"`
	Images      []ProductImage `json:"images" firestore:"images"`
	CreatedAt   time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time      `json:"updated_at" firestore:"updatedAt"`
}

// ThumbnailURL returns the first image url, the one attached to conversations.
func (p *Product) ThumbnailURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0].URL
}

// Snapshot freezes the reply-context fields for a new conversation.
func (p *Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Materials:   p.Materials,
		Dimensions:  p.Dimensions,
		Location:    p.Location,
	}
}
