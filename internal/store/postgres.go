package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
)

// ErrRevisionConflict reports a write against a revision that is no longer
// the latest.
var ErrRevisionConflict = errors.New("revision conflict")

type PostgresStore struct {
	db    *sql.DB
	types pt.Types
}

func NewPostgresStore(db *sql.DB, types pt.Types) *PostgresStore {
	return &PostgresStore{db: db, types: types}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateDocument(ctx context.Context, item Document) (Document, error) {
	blocks, err := encodeBlocks(item.Blocks)
	if err != nil {
		return Document{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, fmt.Errorf("begin create document: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents (id, title, blocks, body_text, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING revision, created_at, updated_at
	`, item.ID, item.Title, blocks, pt.PlainText(item.Blocks), item.UpdatedBy).Scan(&item.Revision, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	if item.UpdatedBy != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_members (document_id, user_name, role)
			VALUES ($1, $2, 'editor')
			ON CONFLICT (document_id, user_name) DO NOTHING
		`, item.ID, item.UpdatedBy); err != nil {
			return Document{}, fmt.Errorf("insert owner membership: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Document{}, fmt.Errorf("commit create document: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var (
		item Document
		raw  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, blocks, revision, updated_by, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, documentID).Scan(&item.ID, &item.Title, &raw, &item.Revision, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	if item.Blocks, err = s.decodeBlocks(raw); err != nil {
		return Document{}, fmt.Errorf("document %s: %w", documentID, err)
	}
	return item, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, blocks, revision, updated_by, created_at, updated_at
		FROM documents
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var (
			item Document
			raw  []byte
		)
		if err := rows.Scan(&item.ID, &item.Title, &raw, &item.Revision, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if item.Blocks, err = s.decodeBlocks(raw); err != nil {
			return nil, fmt.Errorf("document %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// AppendPatches stores blocks as the next revision of documentID and logs
// the patches that produced it. expected must be the current revision.
func (s *PostgresStore) AppendPatches(ctx context.Context, documentID, sessionID string, expected int64, patches []patch.Patch, blocks []pt.Block, updatedBy string) (int64, error) {
	encodedBlocks, err := encodeBlocks(blocks)
	if err != nil {
		return 0, err
	}
	encodedPatches, err := json.Marshal(patch.List(patches))
	if err != nil {
		return 0, fmt.Errorf("encode patches: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append patches: %w", err)
	}
	defer tx.Rollback()

	var revision int64
	err = tx.QueryRowContext(ctx, `
		UPDATE documents
		SET blocks=$3, body_text=$4, revision=revision+1, updated_by=$5, updated_at=NOW()
		WHERE id=$1 AND revision=$2
		RETURNING revision
	`, documentID, expected, encodedBlocks, pt.PlainText(blocks), updatedBy).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.revision(ctx, tx, documentID); getErr != nil {
			return 0, getErr
		}
		return 0, fmt.Errorf("%w: document %s is past revision %d", ErrRevisionConflict, documentID, expected)
	}
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}

	if len(patches) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_patches (document_id, revision, session_id, patches)
			VALUES ($1, $2, $3, $4)
		`, documentID, revision, sessionID, encodedPatches); err != nil {
			return 0, fmt.Errorf("insert patches: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append patches: %w", err)
	}
	return revision, nil
}

func (s *PostgresStore) revision(ctx context.Context, tx *sql.Tx, documentID string) (int64, error) {
	var revision int64
	if err := tx.QueryRowContext(ctx, `SELECT revision FROM documents WHERE id=$1`, documentID).Scan(&revision); err != nil {
		return 0, err
	}
	return revision, nil
}

// ListPatches returns the log entries after revision since, oldest first.
func (s *PostgresStore) ListPatches(ctx context.Context, documentID string, since int64) ([]PatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, revision, session_id, patches, created_at
		FROM document_patches
		WHERE document_id=$1 AND revision > $2
		ORDER BY revision ASC
	`, documentID, since)
	if err != nil {
		return nil, fmt.Errorf("list patches: %w", err)
	}
	defer rows.Close()

	items := make([]PatchRecord, 0)
	for rows.Next() {
		var (
			item PatchRecord
			raw  []byte
		)
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Revision, &item.SessionID, &raw, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan patches: %w", err)
		}
		var list patch.List
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode patches at revision %d: %w", item.Revision, err)
		}
		item.Patches = list
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patches: %w", err)
	}
	return items, nil
}

// GetMemberRole returns the role of userName on documentID. Users without a
// membership are viewers.
func (s *PostgresStore) GetMemberRole(ctx context.Context, documentID, userName string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM document_members WHERE document_id=$1 AND user_name=$2`, documentID, userName).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "viewer", nil
	}
	if err != nil {
		return "", fmt.Errorf("read role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) SetMemberRole(ctx context.Context, member Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_members (document_id, user_name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, user_name) DO UPDATE SET role=EXCLUDED.role
	`, member.DocumentID, member.UserName, member.Role)
	if err != nil {
		return fmt.Errorf("set member role: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// encodeBlocks returns the JSONB parameter for blocks; nil stays SQL NULL.
func encodeBlocks(blocks []pt.Block) (any, error) {
	if blocks == nil {
		return nil, nil
	}
	data, err := pt.MarshalBlocks(blocks)
	if err != nil {
		return nil, fmt.Errorf("encode blocks: %w", err)
	}
	return string(data), nil
}

func (s *PostgresStore) decodeBlocks(raw []byte) ([]pt.Block, error) {
	if raw == nil {
		return nil, nil
	}
	return pt.UnmarshalBlocks(raw, s.types)
}
