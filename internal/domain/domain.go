package domain

const (
	MissionLocked    = "locked"
	MissionActive    = "active"
	MissionCompleted = "completed"
)

// MissionCount is the fixed length of every user's mission chain.
const MissionCount = 4

// DateLayout is the calendar-day key used for daily progress.
const DateLayout = "2006-01-02"

type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role" enum:"user,admin"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	LastSignedIn string `json:"last_signed_in,omitempty" format:"date-time"`
}

// MissionTemplate carries the display texts and completion rule used to seed a mission.
type MissionTemplate struct {
	Number             int    `json:"number" yaml:"number"`
	Title              string `json:"title" yaml:"title"`
	Objective          string `json:"objective" yaml:"objective"`
	MinimalAction      string `json:"minimal_action" yaml:"minimal_action"`
	RepetitionRule     string `json:"repetition_rule" yaml:"repetition_rule"`
	CompletionCriteria string `json:"completion_criteria" yaml:"completion_criteria"`
	SilentPenalty      string `json:"silent_penalty" yaml:"silent_penalty"`
	RequiredStreak     int    `json:"required_streak" yaml:"required_streak"`
}

type Mission struct {
	ID                 int64   `json:"id"`
	UserID             int64   `json:"user_id"`
	Number             int     `json:"mission_number" minimum:"1" maximum:"4"`
	Title              string  `json:"title"`
	Objective          string  `json:"objective"`
	MinimalAction      string  `json:"minimal_action"`
	RepetitionRule     string  `json:"repetition_rule"`
	CompletionCriteria string  `json:"completion_criteria"`
	SilentPenalty      string  `json:"silent_penalty"`
	RequiredStreak     int     `json:"required_streak"`
	Status             string  `json:"status" enum:"locked,active,completed"`
	StartedAt          *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt        *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

type DailyProgress struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	MissionID       int64  `json:"mission_id"`
	Date            string `json:"date" format:"date"`
	Completed       bool   `json:"completed"`
	ConsecutiveDays int    `json:"consecutive_days"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       string `json:"created_at" format:"date-time"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

// Transition completes one mission and optionally activates its successor.
// NextMissionID is zero when the completed mission is the last one.
type Transition struct {
	UserID        int64
	MissionID     int64
	NextMissionID int64
	At            string
}

type Autonomy struct {
	Percent   int  `json:"percent" minimum:"0" maximum:"100"`
	Ready     bool `json:"ready"`
	Completed int  `json:"completed"`
	Total     int  `json:"total"`
}

type AutonomySnapshot struct {
	UserID    int64  `json:"user_id"`
	Week      string `json:"week"`
	Percent   int    `json:"percent"`
	Ready     bool   `json:"ready"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

type Guide struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Layer       string `json:"layer" enum:"illusion,clarity,pattern,escape,autonomy"`
	Content     string `json:"content"`
	PDFURL      string `json:"pdf_url,omitempty"`
	ReadingTime int    `json:"reading_time,omitempty"`
	Order       int    `json:"order"`
}

type Interaction struct {
	ID          string `json:"id"`
	UserID      int64  `json:"user_id"`
	AgentType   string `json:"agent_type" enum:"clarity,decision,execution,cut"`
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
