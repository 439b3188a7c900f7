package models

import "gorm.io/datatypes"

// HeroContent is the hero banner. At most one row exists.
type HeroContent struct {
	Base
	Title    string                      `json:"title"`
	Subtitle string                      `json:"subtitle"`
	Images   datatypes.JSONSlice[string] `json:"images"`
}

// ClientLogos holds the client logo wall. At most one row exists.
type ClientLogos struct {
	Base
	Logos datatypes.JSONSlice[string] `json:"logos"`
}

type Service struct {
	Base
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"not null" json:"description"`
	Image       string `json:"image"`
}

// ServiceView is the public shape of a service.
type ServiceView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (s *Service) View() ServiceView {
	return ServiceView{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Image:       s.Image,
	}
}

// HeroView is the public shape of the hero section.
type HeroView struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle"`
	Images   []string `json:"images"`
}

func (h *HeroContent) View() HeroView {
	images := []string(h.Images)
	if images == nil {
		images = []string{}
	}
	return HeroView{
		ID:       h.ID,
		Title:    h.Title,
		Subtitle: h.Subtitle,
		Images:   images,
	}
}
