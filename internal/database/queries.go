package database

import (
	"context"
	"fmt"
	"time"
)

const identityColumns = "handle, first_name, last_name, COALESCE(email, ''), password_hash, status, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row scanner) (Identity, error) {
	var (
		i      Identity
		status string
	)
	err := row.Scan(
		&i.Handle,
		&i.FirstName,
		&i.LastName,
		&i.Email,
		&i.PasswordHash,
		&status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	i.Status = Status(status)

	return i, err
}

func (db *PgRelayRepository) CreateIdentity(ctx context.Context, params CreateIdentityParams) (Identity, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO identities (handle, first_name, last_name, email, password_hash, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $7) RETURNING "+identityColumns,
		params.Handle,
		params.FirstName,
		params.LastName,
		params.Email,
		params.PasswordHash,
		string(StatusDisconnected),
		now,
	)

	i, err := scanIdentity(row)
	return i, translateErr(err)
}

func (db *PgRelayRepository) GetIdentity(ctx context.Context, handle string) (Identity, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT "+identityColumns+" FROM identities WHERE handle = $1 LIMIT 1",
		handle,
	)

	i, err := scanIdentity(row)
	return i, translateErr(err)
}

func (db *PgRelayRepository) UpsertPresence(ctx context.Context, handle string, status Status) (Identity, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(
		ctx,
		"INSERT INTO identities (handle, status, created_at, updated_at) VALUES ($1, $2, $3, $3) "+
			"ON CONFLICT (handle) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at "+
			"RETURNING "+identityColumns,
		handle,
		string(status),
		now,
	)

	i, err := scanIdentity(row)
	return i, translateErr(err)
}

func (db *PgRelayRepository) UpdatePresence(ctx context.Context, handle string, status Status) (Identity, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"UPDATE identities SET status = $2, updated_at = $3 WHERE handle = $1 RETURNING "+identityColumns,
		handle,
		string(status),
		time.Now().UTC(),
	)

	i, err := scanIdentity(row)
	return i, translateErr(err)
}

func (db *PgRelayRepository) ListIdentitiesByStatus(ctx context.Context, status Status) ([]Identity, error) {
	rows, err := db.conn.QueryContext(
		ctx,
		"SELECT "+identityColumns+" FROM identities WHERE status = $1 ORDER BY handle",
		string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := make([]Identity, 0)
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		identities = append(identities, i)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return identities, nil
}

func (db *PgRelayRepository) ResetPresence(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(
		ctx,
		"UPDATE identities SET status = $1, updated_at = $2 WHERE status = $3",
		string(StatusDisconnected),
		time.Now().UTC(),
		string(StatusConnected),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgRelayRepository) GetConversationId(ctx context.Context, senderId, recipientId string) (string, error) {
	row := db.conn.QueryRowContext(
		ctx,
		"SELECT conversation_id FROM conversation_records WHERE sender_id = $1 AND recipient_id = $2 LIMIT 1",
		senderId,
		recipientId,
	)

	var id string
	err := row.Scan(&id)
	return id, translateErr(err)
}

func (db *PgRelayRepository) CreateConversation(ctx context.Context, senderId, recipientId, conversationId string) (string, error) {
	// Rows go in canonical pair order so that concurrent creators for the
	// same pair contend on the same row first and never deadlock.
	low, high := orderedPair(senderId, recipientId)
	_, err := db.conn.ExecContext(
		ctx,
		"INSERT INTO conversation_records (sender_id, recipient_id, conversation_id, created_at) "+
			"VALUES ($1, $2, $3, $4), ($2, $1, $3, $4) ON CONFLICT DO NOTHING",
		low,
		high,
		conversationId,
		time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}

	return db.GetConversationId(ctx, senderId, recipientId)
}

func (db *PgRelayRepository) CreateMessage(ctx context.Context, msg Message) error {
	_, err := db.conn.ExecContext(
		ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, recipient_id, content, sent_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		msg.Id,
		msg.ConversationId,
		msg.SenderId,
		msg.RecipientId,
		msg.Content,
		msg.SentAt,
	)

	return translateErr(err)
}

func (db *PgRelayRepository) GetMessages(ctx context.Context, conversationId string) ([]Message, error) {
	rows, err := db.conn.QueryContext(
		ctx,
		"SELECT id, conversation_id, sender_id, recipient_id, content, sent_at FROM messages "+
			"WHERE conversation_id = $1 ORDER BY sent_at ASC, id ASC",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.ConversationId, &msg.SenderId, &msg.RecipientId, &msg.Content, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}
