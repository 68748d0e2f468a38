package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore is the production Store implementation backed by Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool to the given Postgres URL, applies
// pending schema migrations, and verifies connectivity.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: postgres ping failed: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle for health checks.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash, inviteCode string) (*User, error) {
	// The numeric user id is allocated as MAX+1 in the same statement; the
	// unique constraint on user_id turns a concurrent allocation into an
	// ErrDuplicate the caller can retry.
	const query = `
		INSERT INTO users (username, password, invite_code, user_id)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(user_id), 0) + 1 FROM users))
		RETURNING id, username, password, invite_code, user_id, created_at`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, username, passwordHash, inviteCode))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	const query = `
		SELECT id, username, password, invite_code, user_id, created_at
		FROM users WHERE username = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get user by username: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	const query = `
		SELECT id, username, password, invite_code, user_id, created_at
		FROM users WHERE id = $1`

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]*User, error) {
	const q = `
		SELECT id, username, password, invite_code, user_id, created_at
		FROM users
		WHERE username ILIKE $1 OR user_id::text LIKE $2
		ORDER BY user_id
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, q, "%"+query+"%", query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: search users scan: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CreateChat(ctx context.Context, isGroup bool, name, inviteCode string) (*Chat, error) {
	const query = `
		INSERT INTO chats (is_group, name, invite_code)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		RETURNING id, is_group, COALESCE(name, ''), COALESCE(invite_code, ''), created_at`

	var c Chat
	err := s.db.QueryRowContext(ctx, query, isGroup, name, inviteCode).
		Scan(&c.ID, &c.IsGroup, &c.Name, &c.InviteCode, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("storage: create chat: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetChatByID(ctx context.Context, chatID string) (*Chat, error) {
	const query = `
		SELECT id, is_group, COALESCE(name, ''), COALESCE(invite_code, ''), created_at
		FROM chats WHERE id = $1`

	var c Chat
	err := s.db.QueryRowContext(ctx, query, chatID).
		Scan(&c.ID, &c.IsGroup, &c.Name, &c.InviteCode, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get chat: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetChatsByUserID(ctx context.Context, userID string) ([]*Chat, error) {
	const query = `
		SELECT c.id, c.is_group, COALESCE(c.name, ''), COALESCE(c.invite_code, ''), c.created_at
		FROM chat_members cm
		JOIN chats c ON c.id = cm.chat_id
		WHERE cm.user_id = $1
		ORDER BY c.created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: chats by user: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.IsGroup, &c.Name, &c.InviteCode, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: chats by user scan: %w", err)
		}
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

func (s *PostgresStore) AddChatMember(ctx context.Context, chatID, userID string) error {
	const query = `
		INSERT INTO chat_members (chat_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (chat_id, user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, chatID, userID); err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: add chat member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChatMembers(ctx context.Context, chatID string) ([]*User, error) {
	if _, err := s.GetChatByID(ctx, chatID); err != nil {
		return nil, err
	}

	const query = `
		SELECT u.id, u.username, u.password, u.invite_code, u.user_id, u.created_at
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = $1
		ORDER BY cm.joined_at`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("storage: chat members: %w", err)
	}
	defer rows.Close()

	var members []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: chat members scan: %w", err)
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

func (s *PostgresStore) CreateMessage(ctx context.Context, chatID, senderID, content, fileURL, fileType string) (*Message, error) {
	const query = `
		INSERT INTO messages (chat_id, sender_id, content, file_url, file_type)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, chat_id, sender_id, content, COALESCE(file_url, ''), COALESCE(file_type, ''), created_at`

	var m Message
	err := s.db.QueryRowContext(ctx, query, chatID, senderID, content, fileURL, fileType).
		Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.FileURL, &m.FileType, &m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: create message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetMessagesByChatID(ctx context.Context, chatID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	// Newest `limit` rows, returned in ascending order.
	const query = `
		SELECT id, chat_id, sender_id, content, COALESCE(file_url, ''), COALESCE(file_type, ''), created_at
		FROM (
			SELECT * FROM messages WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2
		) page
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: messages by chat: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.FileURL, &m.FileType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: messages by chat scan: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) GetLastMessage(ctx context.Context, chatID string) (*Message, error) {
	const query = `
		SELECT id, chat_id, sender_id, content, COALESCE(file_url, ''), COALESCE(file_type, ''), created_at
		FROM messages WHERE chat_id = $1
		ORDER BY created_at DESC LIMIT 1`

	var m Message
	err := s.db.QueryRowContext(ctx, query, chatID).
		Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.FileURL, &m.FileType, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: last message: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) CreateMessageStatus(ctx context.Context, messageID, userID, status string) (*MessageStatus, error) {
	const query = `
		INSERT INTO message_status (message_id, user_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, message_id, user_id, status, read_at`

	return scanStatus(s.db.QueryRowContext(ctx, query, messageID, userID, status))
}

func (s *PostgresStore) UpdateMessageStatus(ctx context.Context, messageID, userID, status string) (*MessageStatus, error) {
	// Only a delivered record transitions; read is terminal and read_at is
	// stamped exactly once.
	const query = `
		UPDATE message_status
		SET status = $3,
		    read_at = CASE WHEN $3 = 'read' THEN COALESCE(read_at, NOW()) ELSE read_at END
		WHERE message_id = $1 AND user_id = $2 AND status = 'delivered'
		RETURNING id, message_id, user_id, status, read_at`

	st, err := scanStatus(s.db.QueryRowContext(ctx, query, messageID, userID, status))
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: update message status: %w", err)
	}

	// No delivered row: either already read (no-op) or missing (ErrNotFound).
	return s.GetMessageStatus(ctx, messageID, userID)
}

func (s *PostgresStore) GetMessageStatus(ctx context.Context, messageID, userID string) (*MessageStatus, error) {
	const query = `
		SELECT id, message_id, user_id, status, read_at
		FROM message_status
		WHERE message_id = $1 AND user_id = $2`

	st, err := scanStatus(s.db.QueryRowContext(ctx, query, messageID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get message status: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.InviteCode, &u.UserID, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanStatus(row rowScanner) (*MessageStatus, error) {
	var (
		st     MessageStatus
		readAt sql.NullTime
	)
	if err := row.Scan(&st.ID, &st.MessageID, &st.UserID, &st.Status, &readAt); err != nil {
		return nil, err
	}
	if readAt.Valid {
		st.ReadAt = &readAt.Time
	}
	return &st, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
