package event

import "time"

// Event payloads. Subscribers key on the concrete type.

type PlayerJoined struct {
	PlayerID  int64
	Username  string
	SessionID string
	RoomID    string
}

type PlayerLeft struct {
	PlayerID  int64
	Username  string
	SessionID string
	RoomID    string
}

type PlayerMoved struct {
	PlayerID int64
	Username string
	FromRoom string
	ToRoom   string
	Reason   string // walk, follow, teleport, flee, respawn
}

type RoomUpdated struct {
	RoomID string
}

type ObjectMoved struct {
	ObjectID string
	FromKind string
	FromID   string
	ToKind   string
	ToID     string
}

type CombatStarted struct {
	InstanceID string
	RoomID     string
	PlayerIDs  []int64
	MonsterIDs []int64
}

type CombatEnded struct {
	InstanceID string
	RoomID     string
	Victor     string // players, monsters, aborted
	Turns      int
}

type MonsterKilled struct {
	MonsterID  int64
	TemplateID string
	RoomID     string
	KillerID   int64 // player id of the last damager, 0 if none
	Gold       int
	Experience int
}

type SchedulerTick struct {
	Phase int // second within minute: 0, 15, 30, 45
	At    time.Time
}
