package recommend

import (
	"time"
)

// Action is the end-user-facing recommendation label chosen by the assembler.
type Action string

const (
	ActionShutdown    Action = "SHUTDOWN"
	ActionSchedule    Action = "SCHEDULE"
	ActionScaleUp     Action = "SCALE_UP"
	ActionScaleDown   Action = "SCALE_DOWN"
	ActionChangeShape Action = "CHANGE_SHAPE"
	ActionSplit       Action = "SPLIT"
	ActionEmpty       Action = "EMPTY"
	ActionError       Action = "ERROR"
)

// IsResize reports whether the action proposes a shape change.
func (a Action) IsResize() bool {
	switch a {
	case ActionScaleUp, ActionScaleDown, ActionChangeShape, ActionSplit:
		return true
	}
	return false
}

// FeedbackStatus is operator feedback attached to a past recommendation.
type FeedbackStatus string

const (
	FeedbackNone          FeedbackStatus = ""
	FeedbackApplied       FeedbackStatus = "APPLIED"
	FeedbackWrong         FeedbackStatus = "WRONG"
	FeedbackTooLarge      FeedbackStatus = "TOO_LARGE"
	FeedbackTooSmall      FeedbackStatus = "TOO_SMALL"
	FeedbackDontRecommend FeedbackStatus = "DONT_RECOMMEND"
	FeedbackTooExpensive  FeedbackStatus = "TOO_EXPENSIVE"
	FeedbackTooWide       FeedbackStatus = "TOO_WIDE"
)

// ValidFeedback reports whether s is a known feedback status.
func ValidFeedback(s FeedbackStatus) bool {
	switch s {
	case FeedbackApplied, FeedbackWrong, FeedbackTooLarge, FeedbackTooSmall,
		FeedbackDontRecommend, FeedbackTooExpensive, FeedbackTooWide:
		return true
	}
	return false
}

// CompatibilityRule limits resize candidates relative to the current shape.
type CompatibilityRule string

const (
	CompatibilityNone       CompatibilityRule = "NONE"
	CompatibilitySame       CompatibilityRule = "SAME"
	CompatibilityCompatible CompatibilityRule = "COMPATIBLE"
)

// Status is the terminal state of a per-resource run.
type Status string

const (
	StatusOK        Status = "OK"
	StatusError     Status = "ERROR"
	StatusPostponed Status = "POSTPONED"
)

// ScheduleWindow is one weekly run window: start/stop on a fixed "HH:MM" grid,
// the weekdays it applies to, and the detection confidence.
type ScheduleWindow struct {
	Start       string   `json:"start"`
	Stop        string   `json:"stop"`
	Weekdays    []string `json:"weekdays"`
	Probability float64  `json:"probability"`
}

// AllWeekdays lists weekday names in schedule order (Monday first).
var AllWeekdays = []string{
	"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY",
}

// AlwaysRunWindow is the sentinel "no schedule" value: a single all-week
// window with start == stop == midnight.
func AlwaysRunWindow() ScheduleWindow {
	days := make([]string, len(AllWeekdays))
	copy(days, AllWeekdays)
	return ScheduleWindow{Start: "00:00", Stop: "00:00", Weekdays: days, Probability: 1}
}

// IsAlwaysRun reports whether w is the "always run" sentinel.
func (w ScheduleWindow) IsAlwaysRun() bool {
	return w.Start == "00:00" && w.Stop == "00:00" && len(w.Weekdays) == 7
}

// Savings is the computed monthly saving estimate for a recommendation.
type Savings struct {
	CurrentMonthlyUSD   float64 `json:"currentMonthlyUsd"`
	EstimatedMonthlyUSD float64 `json:"estimatedMonthlyUsd"`
	SavedMonthlyUSD     float64 `json:"savedMonthlyUsd"`
	Currency            string  `json:"currency"`
}

// Stats describes the analyzed window and run outcome of a report.
type Stats struct {
	FromDate time.Time `json:"fromDate"`
	ToDate   time.Time `json:"toDate"`
	Status   Status    `json:"status"`
	Message  string    `json:"message,omitempty"`
}

// ShapeProposal is the serialized form of one candidate shape inside a report
// or a history row.
type ShapeProposal struct {
	Name        string  `json:"name"`
	Cloud       string  `json:"cloud"`
	CPU         float64 `json:"cpu"`
	MemoryGB    float64 `json:"memoryGb"`
	Probability float64 `json:"probability"`
	PriceUSD    float64 `json:"priceUsd,omitempty"`
}

// Body is the recommendation payload of a report.
type Body struct {
	Schedule          []ScheduleWindow  `json:"schedule"`
	RecommendedShapes []ShapeProposal   `json:"recommendedShapes"`
	Savings           *Savings          `json:"savings,omitempty"`
	Advanced          map[string]string `json:"advanced,omitempty"`
}

// Report is the per-resource recommendation record, appended as one line of a
// jsonl file per (customer, cloud, tenant, region).
type Report struct {
	ResourceID     string            `json:"resourceId"`
	ResourceType   string            `json:"resourceType"`
	Source         string            `json:"source"`
	Severity       string            `json:"severity"`
	Recommendation Body              `json:"recommendation"`
	Stats          Stats             `json:"stats"`
	Meta           map[string]string `json:"meta,omitempty"`
	GeneralActions []Action          `json:"generalActions"`
}

// GroupAction is the autoscaling-group level recommendation.
type GroupAction string

const (
	GroupScaleUp   GroupAction = "SCALE_UP"
	GroupScaleDown GroupAction = "SCALE_DOWN"
	GroupNoAction  GroupAction = "EMPTY"
)

// GroupThresholds are the load bounds that drive group scaling decisions.
type GroupThresholds struct {
	Min     float64 `json:"min" yaml:"min"`
	Desired float64 `json:"desired" yaml:"desired"`
	Max     float64 `json:"max" yaml:"max"`
}

// AutoDetectStep marks a policy whose scale step is derived from member
// capacity instead of being fixed.
const AutoDetectStep = -1

// GroupPolicy is the external autoscaling-group configuration, read-only to
// the engine.
type GroupPolicy struct {
	ID           string          `json:"id" yaml:"id"`
	Tag          string          `json:"tag" yaml:"tag"`
	ScaleStep    int             `json:"scaleStep" yaml:"scaleStep"` // AutoDetectStep = derive from capacity
	CooldownDays int             `json:"cooldownDays" yaml:"cooldownDays"`
	Thresholds   GroupThresholds `json:"thresholds" yaml:"thresholds"`
}

// GroupReport is the group-level recommendation record.
type GroupReport struct {
	PolicyID     string      `json:"policyId"`
	Action       GroupAction `json:"action"`
	ScaleStep    int         `json:"scaleStep,omitempty"`
	Resources    []string    `json:"resources"`
	NonMatching  []string    `json:"nonMatching,omitempty"`
	LoadPct      float64     `json:"loadPct"`
	ProducedAt   time.Time   `json:"producedAt"`
	ReusedCached bool        `json:"reusedCached,omitempty"`
}
