package domain

import "time"

// BreakdownRecord is one vehicle breakdown event being tracked. Status always
// mirrors the NewStatus of its highest-sequence transition.
type BreakdownRecord struct {
	ID           uint      `json:"id"`
	VehiclePlate string    `json:"vehicle_plate"`
	DriverName   string    `json:"driver_name"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatusTransition is one row of the append-only transition log. Created
// exactly once, never mutated, never deleted.
type StatusTransition struct {
	ID                       uint      `json:"id"`
	RecordID                 uint      `json:"record_id"`
	SequenceNumber           int       `json:"sequence_number"`
	PreviousStatus           *Status   `json:"previous_status"`
	NewStatus                Status    `json:"new_status"`
	OperatorName             string    `json:"operator_name"`
	ChangedAt                time.Time `json:"changed_at"`
	DurationInPreviousStatus *int64    `json:"duration_in_previous_status"`
	Notes                    string    `json:"notes,omitempty"`
}

// Occurrence is a free-text operator annotation attached to a record.
type Occurrence struct {
	ID           uint      `json:"id"`
	RecordID     uint      `json:"record_id"`
	OperatorName string    `json:"operator_name"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// TimelineEntry is one interval of the reconstructed status timeline.
// ExitedAt is nil for the current (open) interval, whose duration is
// live-computed against the caller's clock.
type TimelineEntry struct {
	Status          Status     `json:"status"`
	EnteredAt       time.Time  `json:"entered_at"`
	ExitedAt        *time.Time `json:"exited_at"`
	DurationSeconds int64      `json:"duration_seconds"`
	OperatorName    string     `json:"operator_name"`
	Notes           string     `json:"notes,omitempty"`
	IsCurrent       bool       `json:"is_current"`
}

// StatusTimeAnalysis aggregates every interval a record (or the fleet) spent
// in one status.
type StatusTimeAnalysis struct {
	Status                Status  `json:"status"`
	TotalTimeSeconds      int64   `json:"total_time_seconds"`
	TotalOccurrences      int     `json:"total_occurrences"`
	AverageTimeSeconds    float64 `json:"average_time_seconds"`
	MinTimeSeconds        int64   `json:"min_time_seconds"`
	MaxTimeSeconds        int64   `json:"max_time_seconds"`
	PercentageOfTotalTime float64 `json:"percentage_of_total_time"`
}

// Bottleneck is one disproportionately long interval. OccurrenceNumber is the
// 1-based position among that status's own repeats.
type Bottleneck struct {
	Status           Status    `json:"status"`
	DurationSeconds  int64     `json:"duration_seconds"`
	OccurrenceNumber int       `json:"occurrence_number"`
	Percentage       float64   `json:"percentage"`
	EnteredAt        time.Time `json:"entered_at"`
}

type EfficiencyMetrics struct {
	FastestResolutionTimeSeconds int64   `json:"fastest_resolution_time_seconds"`
	SlowestResolutionTimeSeconds int64   `json:"slowest_resolution_time_seconds"`
	MostTimeConsumingStatus      Status  `json:"most_time_consuming_status"`
	LeastTimeConsumingStatus     Status  `json:"least_time_consuming_status"`
	AverageTimePerStatusSeconds  float64 `json:"average_time_per_status_seconds"`
}

// ProcessTimelineAnalysis is the derived, never-persisted analysis of one
// record's full transition history.
type ProcessTimelineAnalysis struct {
	RecordID                uint                 `json:"record_id"`
	Timeline                []TimelineEntry      `json:"timeline"`
	TimeAnalysisByStatus    []StatusTimeAnalysis `json:"time_analysis_by_status"`
	Bottlenecks             []Bottleneck         `json:"bottlenecks"`
	Efficiency              EfficiencyMetrics    `json:"efficiency"`
	TotalProcessTimeSeconds int64                `json:"total_process_time_seconds"`
}

// TransitionPattern counts how often one status edge was taken fleet-wide.
type TransitionPattern struct {
	FromStatus             Status  `json:"from_status"`
	ToStatus               Status  `json:"to_status"`
	Frequency              int     `json:"frequency"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}

// EfficiencyTrend is one daily bucket of completed processes.
type EfficiencyTrend struct {
	Date                         string  `json:"date"`
	AverageCompletionTimeSeconds float64 `json:"average_completion_time_seconds"`
	TotalProcesses               int     `json:"total_processes"`
}

type Recommendation struct {
	Type       string  `json:"type"`
	Status     Status  `json:"status"`
	Impact     string  `json:"impact"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}

// ManagerialReport rolls per-record aggregates up across a time period.
type ManagerialReport struct {
	PeriodStart                  time.Time            `json:"period_start"`
	PeriodEnd                    time.Time            `json:"period_end"`
	TotalProcesses               int                  `json:"total_processes"`
	CompletedProcesses           int                  `json:"completed_processes"`
	ActiveProcesses              int                  `json:"active_processes"`
	AverageCompletionTimeSeconds float64              `json:"average_completion_time_seconds"`
	StatusPerformance            []StatusTimeAnalysis `json:"status_performance"`
	CommonTransitionPatterns     []TransitionPattern  `json:"common_transition_patterns"`
	EfficiencyTrends             []EfficiencyTrend    `json:"efficiency_trends"`
	Recommendations              []Recommendation     `json:"recommendations"`
}

// RecordFilter narrows record listings.
type RecordFilter struct {
	Query  string
	Status *Status
	Limit  int
}

type User struct {
	ID           uint      `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AuthSession struct {
	ID        uint
	UserID    uint
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type APIToken struct {
	ID        uint
	UserID    uint
	Name      string
	TokenHash string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

type Role struct {
	ID        uint      `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the authenticated caller, passed explicitly into every service
// operation instead of living in ambient state.
type Identity struct {
	User        User
	Permissions map[string]struct{}
}

type AuditLog struct {
	ID          uint
	ActorUserID *uint
	Action      string
	TargetType  string
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

type AuditRecord struct {
	ID             uint      `json:"id"`
	ActorUserID    *uint     `json:"actor_user_id"`
	ActorUserEmail string    `json:"actor_user_email"`
	Action         string    `json:"action"`
	TargetType     string    `json:"target_type"`
	TargetID       *uint     `json:"target_id"`
	Metadata       string    `json:"metadata"`
	CreatedAt      time.Time `json:"created_at"`
}
