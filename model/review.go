package model

import (
	"strings"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Review struct {
	User      string    `json:"user"`
	Message   string    `json:"message"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Review) Validate() error {
	r.Message = strings.TrimSpace(r.Message)
	if r.User == "" {
		return invalid("user", "required")
	}
	if r.Message == "" {
		return invalid("message", "required")
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return invalid("rating", "must be between 1 and 5")
	}
	return nil
}
