package siteconfig

import (
	"context"
	"strings"

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

// ThemeSource serves theme maps from site configuration.
type ThemeSource struct {
	themes map[string]domain.ThemeMap
}

var _ ports.ThemeSource = (*ThemeSource)(nil)

// NewThemeSource indexes the theme maps of the configured sites.
func NewThemeSource(sites []config.SiteConfig) *ThemeSource {
	themes := make(map[string]domain.ThemeMap, len(sites))
	for _, site := range sites {
		if len(site.Themes) == 0 {
			continue
		}
		m := make(domain.ThemeMap, len(site.Themes))
		for theme, children := range site.Themes {
			theme = strings.TrimSpace(theme)
			if theme == "" {
				continue
			}
			m[theme] = append(m[theme], children...)
		}
		themes[site.ID] = m
	}
	return &ThemeSource{themes: themes}
}

// ThemeMap returns the site's mapping. Flat intents and unknown sites get an empty map.
func (s *ThemeSource) ThemeMap(_ context.Context, siteID string, intent domain.Intent) (domain.ThemeMap, error) {
	if s == nil || !intent.Hierarchical() {
		return domain.ThemeMap{}, nil
	}
	m, ok := s.themes[siteID]
	if !ok {
		return domain.ThemeMap{}, nil
	}
	return m, nil
}
