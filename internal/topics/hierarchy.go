package topics

import (
	"strings"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// ResolveHierarchical picks a theme, then one of the theme's children.
//
// Themes are pool-sourced candidates whose keyword is a key of themes;
// children are pain-rule candidates whose group key is mapped to the chosen
// theme. Without any mapped theme the flat policy runs over the whole pool.
// A theme without children is returned itself.
func (p *Policy) ResolveHierarchical(pool []domain.TopicCandidate, themes domain.ThemeMap, phase Phase, now time.Time, avoidWindow time.Duration) (domain.TopicCandidate, bool) {
	children := make(map[string]map[string]struct{}, len(themes))
	for keyword, keys := range themes {
		set := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			set[strings.TrimSpace(k)] = struct{}{}
		}
		children[strings.TrimSpace(keyword)] = set
	}

	var themePool []domain.TopicCandidate
	for _, c := range pool {
		if c.Source != domain.SourcePool {
			continue
		}
		if _, ok := children[strings.TrimSpace(c.Keyword)]; ok {
			themePool = append(themePool, c)
		}
	}
	if len(themePool) == 0 {
		return p.Select(pool, phase, now, avoidWindow)
	}

	theme, ok := p.Select(themePool, phase, now, avoidWindow)
	if !ok {
		return domain.TopicCandidate{}, false
	}

	allowed := children[strings.TrimSpace(theme.Keyword)]
	var childPool []domain.TopicCandidate
	for _, c := range pool {
		if c.Source != domain.SourcePainRule {
			continue
		}
		if _, ok := allowed[strings.TrimSpace(c.GroupKey)]; ok {
			childPool = append(childPool, c)
		}
	}

	if child, ok := p.Select(childPool, phase, now, avoidWindow); ok {
		return child, true
	}
	return theme, true
}
