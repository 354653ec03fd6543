package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/roomchat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens a SQLite store. dbPath is a file path or ":memory:".
// Call Migrate before first use on a fresh database.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &SQLiteStore{db: db}, nil
}

// Migrate creates missing tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUsersByUsernames returns the existing users among usernames, ordered by id.
func (s *SQLiteStore) GetUsersByUsernames(ctx context.Context, usernames []string) ([]*store.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username IN (` + placeholders(len(usernames)) + `)
		ORDER BY id
	`
	args := make([]any, 0, len(usernames))
	for _, name := range usernames {
		args = append(args, name)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// ==== RoomStore implementation ====

// CreateRoom inserts a room and adds its creator as the first member.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (name, description, category, creator_id)
		VALUES (?, ?, ?, ?)
	`, room.Name, room.Description, room.Category, room.CreatorID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert room %q: %w", room.Name, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_members (room_id, user_id)
		VALUES (?, ?)
	`, roomID, room.CreatorID); err != nil {
		return nil, fmt.Errorf("add creator as member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, name, description, category, creator_id, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.Category,
		&room.CreatorID,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// ListRooms lists all rooms, newest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	return s.queryRooms(ctx, `
		SELECT id, name, description, category, creator_id, created_at
		FROM rooms
		ORDER BY id DESC
	`)
}

// ListUserRooms lists the rooms a user belongs to.
func (s *SQLiteStore) ListUserRooms(ctx context.Context, userID int64) ([]*store.Room, error) {
	return s.queryRooms(ctx, `
		SELECT r.id, r.name, r.description, r.category, r.creator_id, r.created_at
		FROM rooms r
		JOIN room_members rm ON r.id = rm.room_id
		WHERE rm.user_id = ?
		ORDER BY r.id
	`, userID)
}

func (s *SQLiteStore) queryRooms(ctx context.Context, query string, args ...any) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var room store.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.Description, &room.Category, &room.CreatorID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

// AddMember adds a user to a room. Returns false if the user was already a member.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO room_members (room_id, user_id)
		VALUES (?, ?)
	`, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// RemoveMember removes a user from a room. Returns false if the user was not a member.
func (s *SQLiteStore) RemoveMember(ctx context.Context, userID, roomID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM room_members
		WHERE room_id = ? AND user_id = ?
	`, roomID, userID)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?
		)
	`, roomID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// ListMembers lists all members of a room in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID int64) ([]store.UserRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username
		FROM room_members rm
		JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id = ?
		ORDER BY rm.joined_at, u.id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []store.UserRef
	for rows.Next() {
		var ref store.UserRef
		if err := rows.Scan(&ref.ID, &ref.Username); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, ref)
	}

	return members, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message, its mentions and the notifications they trigger in one transaction.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message, notifications []*store.Notification) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (room_id, user_id, text, created_at)
		VALUES (?, ?, ?, ?)
	`, msg.RoomID, msg.UserID, msg.Text, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	msgID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	for _, mention := range msg.Mentions {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_mentions (message_id, user_id)
			VALUES (?, ?)
		`, msgID, mention.ID); err != nil {
			return fmt.Errorf("insert mention: %w", err)
		}
	}

	for _, n := range notifications {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = msg.CreatedAt
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (user_id, room_id, text, read, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, n.UserID, n.RoomID, n.Text, n.Read, n.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		if n.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("get last insert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	msg.ID = msgID
	return nil
}

// ListMessages returns a page of a room's messages in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]*store.Message, error) {
	messages, err := s.queryMessages(ctx, `
		SELECT m.id, m.room_id, m.user_id, u.username, m.text, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = ?
		ORDER BY m.id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CountMessages returns how many messages a room holds.
func (s *SQLiteStore) CountMessages(ctx context.Context, roomID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// SearchMessages finds messages containing query, newest first.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, roomID *int64, limit int) ([]*store.Message, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)

	q := `
		SELECT m.id, m.room_id, m.user_id, u.username, m.text, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.text LIKE '%' || ? || '%' ESCAPE '\'
	`
	args := []any{escaped}
	if roomID != nil {
		q += ` AND m.room_id = ?`
		args = append(args, *roomID)
	}
	q += ` ORDER BY m.id DESC LIMIT ?`
	args = append(args, limit)

	return s.queryMessages(ctx, q, args...)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var messages []*store.Message
	byID := make(map[int64]*store.Message)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Username, &msg.Text, &msg.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	rows.Close()

	if err := s.attachMentions(ctx, byID); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLiteStore) attachMentions(ctx context.Context, byID map[int64]*store.Message) error {
	if len(byID) == 0 {
		return nil
	}

	args := make([]any, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mm.message_id, u.id, u.username
		FROM message_mentions mm
		JOIN users u ON u.id = mm.user_id
		WHERE mm.message_id IN (`+placeholders(len(args))+`)
		ORDER BY mm.message_id, u.id
	`, args...)
	if err != nil {
		return fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msgID int64
		var ref store.UserRef
		if err := rows.Scan(&msgID, &ref.ID, &ref.Username); err != nil {
			return fmt.Errorf("scan mention: %w", err)
		}
		if msg, ok := byID[msgID]; ok {
			msg.Mentions = append(msg.Mentions, ref)
		}
	}
	return rows.Err()
}

// ==== NotificationStore implementation ====

// ListNotifications returns a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID int64) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, room_id, text, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*store.Notification
	for rows.Next() {
		var n store.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.RoomID, &n.Text, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// MarkNotificationsRead flags every unread notification of a user as read.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1
		WHERE user_id = ? AND read = 0
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
