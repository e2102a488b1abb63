package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pickwise/client/internal/model"
)

type sqliteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) Repository {
	return &sqliteRepository{db: db}
}

func (r *sqliteRepository) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	query := "INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	_, err := r.db.ExecContext(ctx, query, conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (r *sqliteRepository) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	query := "SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?"
	row := r.db.QueryRowContext(ctx, query, conversationID)

	var conv model.Conversation
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *sqliteRepository) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	query := "SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC"
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (r *sqliteRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	query := "DELETE FROM conversations WHERE id = ?"
	_, err := r.db.ExecContext(ctx, query, conversationID)
	return err
}

// AddMessage inserts the message and touches the conversation's updated_at
// inside one transaction.
func (r *sqliteRepository) AddMessage(ctx context.Context, conversationID string, message *model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var toolsUsed sql.NullString
	if len(message.ToolsUsed) > 0 {
		encoded, merr := json.Marshal(message.ToolsUsed)
		if merr != nil {
			return fmt.Errorf("could not encode tools_used: %w", merr)
		}
		toolsUsed.String = string(encoded)
		toolsUsed.Valid = true
	}

	insertQuery := `
		INSERT INTO messages (id, conversation_id, author, content, tools_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, insertQuery,
		message.ID,
		conversationID,
		string(message.Author),
		message.Text,
		toolsUsed,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("could not insert message: %w", err)
	}

	touchQuery := "UPDATE conversations SET updated_at = ? WHERE id = ?"
	if _, err = tx.ExecContext(ctx, touchQuery, time.Now().UTC(), conversationID); err != nil {
		return fmt.Errorf("could not update conversation timestamp: %w", err)
	}

	return tx.Commit()
}

func (r *sqliteRepository) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := `
		SELECT id, author, content, tools_used, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		var author string
		var toolsUsed sql.NullString

		if err := rows.Scan(&msg.ID, &author, &msg.Text, &toolsUsed, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Author = model.Role(author)
		msg.Sealed = true
		if toolsUsed.Valid {
			if err := json.Unmarshal([]byte(toolsUsed.String), &msg.ToolsUsed); err != nil {
				return nil, fmt.Errorf("could not decode tools_used: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *sqliteRepository) CountUserMessagesSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ? AND m.author = 'user' AND m.created_at >= ?
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
