package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// ScopeStatus is the outcome of one (site, intent) scope in a cycle.
type ScopeStatus string

const (
	// ScopeGenerated means a draft was stored and usage recorded.
	ScopeGenerated ScopeStatus = "generated"
	// ScopePicked means a topic was picked but no generator is configured.
	ScopePicked    ScopeStatus = "picked"
	ScopeSkipped   ScopeStatus = "skipped"
	ScopeFailed    ScopeStatus = "failed"
)

// ScopeResult describes what happened to one scope.
type ScopeResult struct {
	SiteID   string
	Intent   domain.Intent
	Status   ScopeStatus
	TopicID  string
	Keyword  string
	DraftID  string
	Title    string
	Attempts int
	Err      error
}

// CycleReport summarizes a RunCycle call.
type CycleReport struct {
	StartedAt time.Time
	Seeded    int
	Results   []ScopeResult
}

// Count returns how many scopes ended with status.
func (r CycleReport) Count(status ScopeStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Message renders the report for chat notifications.
func (r CycleReport) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic cycle %s\n", r.StartedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "generated %d, picked %d, skipped %d, failed %d\n",
		r.Count(ScopeGenerated), r.Count(ScopePicked), r.Count(ScopeSkipped), r.Count(ScopeFailed))

	for _, res := range r.Results {
		scope := res.SiteID + "/" + string(res.Intent)
		switch res.Status {
		case ScopeGenerated:
			fmt.Fprintf(&b, "\n[ok] %s: %s -> %q", scope, res.Keyword, res.Title)
		case ScopePicked:
			fmt.Fprintf(&b, "\n[picked] %s: %s", scope, res.Keyword)
		case ScopeSkipped:
			fmt.Fprintf(&b, "\n[skip] %s: no eligible candidates", scope)
		case ScopeFailed:
			fmt.Fprintf(&b, "\n[fail] %s: %v", scope, res.Err)
		}
	}
	return b.String()
}
