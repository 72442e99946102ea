package domain

const (
	EventNameLeveledUp   = "profile.leveled_up"
	EventNameLifeLost    = "profile.life_lost"
	EventNameQueueJoined = "queue.joined"
	EventNameXPAwarded   = "profile.xp_awarded"
)

type EventLeveledUp struct {
	UserID string
	Level  int
	XP     int
}

func (EventLeveledUp) Name() string { return EventNameLeveledUp }

type EventLifeLost struct {
	UserID string
	Lives  int
}

func (EventLifeLost) Name() string { return EventNameLifeLost }

type EventQueueJoined struct {
	UserID string
}

func (EventQueueJoined) Name() string { return EventNameQueueJoined }

// EventXPAwarded is published for every successful XP grant, whatever its source.
type EventXPAwarded struct {
	UserID string
	Amount int
	Source string
}

func (EventXPAwarded) Name() string { return EventNameXPAwarded }
