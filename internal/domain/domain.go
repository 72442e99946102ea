package domain

import "time"

const (
	DefaultLevel = 1
	DefaultXP    = 0
	MaxLives     = 5
)

// Profile is a user's progression record.
type Profile struct {
	UserID string
	Level  int
	XP     int
	Lives  int
}

// NewProfile returns the snapshot a user gets on first access.
func NewProfile(userID string) Profile {
	return Profile{
		UserID: userID,
		Level:  DefaultLevel,
		XP:     DefaultXP,
		Lives:  MaxLives,
	}
}

// XPResult is the outcome of adding experience to a profile.
type XPResult struct {
	UserID    string
	NewLevel  int
	NewXP     int
	LeveledUp bool
}

// QueueStatus reports where a user stands in the waiting queue.
// Position is 1-based and only meaningful when InQueue is true.
type QueueStatus struct {
	InQueue  bool
	Position int
	Total    int
}

type QueueEntry struct {
	UserID   string
	Status   string
	JoinedAt time.Time
}

const QueueStatusWaiting = "waiting"

const DifficultyEasy = "easy"

// Question is immutable quiz reference data.
type Question struct {
	ID         string
	Difficulty string
	Content    QuestionContent
}

type QuestionContent struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// Activity is a question shaped for the client. CorrectIndex is -1 when the
// answer does not appear among the options.
type Activity struct {
	ID           string
	Text         string
	Options      []string
	CorrectIndex int
}
