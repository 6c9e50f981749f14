package models

import "time"

const (
	CollectionProducts = "products"
	CollectionSlides   = "slides"
)

const ProductStatusActive = "Active"

type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	MRP         float64 `json:"mrp,omitempty"`
	Image       string  `json:"image"`
	ImageHover  string  `json:"imageHover,omitempty"`
	Category    string  `json:"category,omitempty"`
	Featured    bool    `json:"featured"`
	Stock       int     `json:"stock"`
	MinOrderQty int     `json:"minOrderQty,omitempty"`
	Status      string  `json:"status"`
}

type Slide struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"imageUrl"`
	Title     string    `json:"title,omitempty"`
	Subtitle  string    `json:"subtitle,omitempty"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
