package domain

import "time"

// Intent is the content category a topic is scheduled for.
type Intent string

const (
	IntentService  Intent = "service"
	IntentCompare  Intent = "compare"
	IntentGuide    Intent = "guide"
	IntentDiscover Intent = "discover"
)

// Intents lists every supported intent in scheduling order.
var Intents = []Intent{IntentService, IntentCompare, IntentGuide, IntentDiscover}

// Valid reports whether the intent is one of the known categories.
func (i Intent) Valid() bool {
	switch i {
	case IntentService, IntentCompare, IntentGuide, IntentDiscover:
		return true
	default:
		return false
	}
}

// Hierarchical reports whether topics for this intent resolve theme -> child.
func (i Intent) Hierarchical() bool {
	return i == IntentGuide || i == IntentDiscover
}

// Status gates eligibility of a candidate.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Source is the provenance tag of a candidate.
type Source string

const (
	SourcePool       Source = "pool"
	SourcePainRule   Source = "painRule"
	SourceRentalType Source = "rentalType"
)

// Telemetry carries search performance numbers produced upstream.
// Nil fields are absent; windowed CTR values are percentages, the
// aggregate CTR is a fraction.
type Telemetry struct {
	Impressions1d *float64 `json:"impressions1d,omitempty"`
	Impressions7d *float64 `json:"impressions7d,omitempty"`
	Clicks1d      *float64 `json:"clicks1d,omitempty"`
	Clicks7d      *float64 `json:"clicks7d,omitempty"`
	Views1d       *float64 `json:"views1d,omitempty"`
	Views7d       *float64 `json:"views7d,omitempty"`
	CTR1d         *float64 `json:"ctr1d,omitempty"`
	CTR7d         *float64 `json:"ctr7d,omitempty"`

	Impressions *float64 `json:"impressions,omitempty"`
	Clicks      *float64 `json:"clicks,omitempty"`
	CTR         *float64 `json:"ctr,omitempty"`
	Position    *float64 `json:"position,omitempty"`
}

// HasWindows reports whether any 1-day or 7-day field is populated.
func (t Telemetry) HasWindows() bool {
	for _, v := range []*float64{t.Impressions1d, t.Impressions7d, t.Clicks1d, t.Clicks7d, t.Views1d, t.Views7d, t.CTR1d, t.CTR7d} {
		if v != nil {
			return true
		}
	}
	return false
}

// HasAggregate reports whether any aggregate field is populated.
func (t Telemetry) HasAggregate() bool {
	return t.Impressions != nil || t.Clicks != nil || t.CTR != nil || t.Position != nil
}

// Empty reports whether no telemetry has been recorded at all.
func (t Telemetry) Empty() bool {
	return !t.HasWindows() && !t.HasAggregate()
}

// TopicCandidate is a schedulable keyword within one (site, intent) scope.
type TopicCandidate struct {
	ID               string
	SiteID           string
	Intent           Intent
	Keyword          string
	Status           Status
	UsageCount       int
	LastUsedAt       *time.Time
	LastContentRef   string
	Telemetry        Telemetry
	PerformanceScore float64
	Source           Source
	GroupKey         string
}

// ThemeMap maps a theme keyword to the group keys of its child candidates.
type ThemeMap map[string][]string

// TopicChoice is the scheduler's answer for one (site, intent) request.
type TopicChoice struct {
	ID           string
	Keyword      string
	Intent       Intent
	RawCandidate TopicCandidate
}

// ContentDraft is a generated article waiting for publication.
type ContentDraft struct {
	ID        string
	SiteID    string
	TopicID   string
	Intent    Intent
	Keyword   string
	Title     string
	Headings  []string
	HTML      string
	WordCount int
	CreatedAt time.Time
}
