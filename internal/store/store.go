package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is wrapped by stores when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is wrapped when a unique value (username, room name) is already taken.
	ErrConflict = errors.New("already exists")
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Ref returns the public reference of u.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username}
}

// UserRef is the public face of a user attached to rooms and messages.
type UserRef struct {
	ID       int64
	Username string
}

// Room represents a chat room.
type Room struct {
	ID          int64
	Name        string
	Description string
	Category    string
	CreatorID   int64
	CreatedAt   time.Time
}

// Message represents a persisted chat message. Messages are append-only.
type Message struct {
	ID       int64
	RoomID   int64
	UserID   int64
	Username string // sender, filled on reads
	Text     string
	// Mentions holds the users resolved from @tokens when the message was created.
	Mentions  []UserRef
	CreatedAt time.Time
}

// Notification is created for each user mentioned in a message.
type Notification struct {
	ID        int64
	UserID    int64
	RoomID    int64
	Text      string
	Read      bool
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUsersByUsernames returns the subset of usernames that exist.
	// Unknown names are skipped without error.
	GetUsersByUsernames(ctx context.Context, usernames []string) ([]*User, error)
}

// RoomStore handles room persistence and membership.
// Membership is stored once per (user, room) pair, so a room's member set and a
// user's room list always change together.
type RoomStore interface {
	// CreateRoom inserts a room and makes its creator the first member.
	CreateRoom(ctx context.Context, room *Room) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRooms lists all rooms, newest first.
	ListRooms(ctx context.Context) ([]*Room, error)

	// AddMember adds a user to a room. Returns false if the user was already a member.
	AddMember(ctx context.Context, userID, roomID int64) (bool, error)

	// RemoveMember removes a user from a room. Returns false if the user was not a member.
	RemoveMember(ctx context.Context, userID, roomID int64) (bool, error)

	// IsMember checks if user is a member of the room.
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)

	// ListMembers lists all members of a room.
	ListMembers(ctx context.Context, roomID int64) ([]UserRef, error)

	// ListUserRooms lists the rooms a user belongs to.
	ListUserRooms(ctx context.Context, userID int64) ([]*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message together with the notifications it triggers.
	// Either everything is stored or nothing is. msg.ID and CreatedAt are set on success.
	SaveMessage(ctx context.Context, msg *Message, notifications []*Notification) error

	// ListMessages returns a page of a room's messages in chronological order.
	// offset counts from the newest message.
	ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]*Message, error)

	// CountMessages returns how many messages a room holds.
	CountMessages(ctx context.Context, roomID int64) (int, error)

	// SearchMessages finds messages containing query (case-insensitive), newest first.
	// roomID narrows the search when non-nil.
	SearchMessages(ctx context.Context, query string, roomID *int64, limit int) ([]*Message, error)
}

// NotificationStore handles mention notifications.
type NotificationStore interface {
	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)

	// MarkNotificationsRead flags every unread notification of a user as read.
	MarkNotificationsRead(ctx context.Context, userID int64) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
