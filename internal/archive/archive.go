// Package archive stores the final snapshot of closed editing sessions in an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ptedit/api/internal/pt"
)

var ErrNotConfigured = errors.New("archive not configured")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Record is the archived form of a closed session.
type Record struct {
	DocumentID string          `json:"documentId"`
	SessionID  string          `json:"sessionId"`
	Revision   int64           `json:"revision"`
	ClosedBy   string          `json:"closedBy"`
	ClosedAt   time.Time       `json:"closedAt"`
	Blocks     json.RawMessage `json:"blocks"`
}

type Archive struct {
	client *minio.Client
	bucket string
	types  pt.Types
}

func New(ctx context.Context, cfg Config, types pt.Types) (*Archive, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}
	a := &Archive{client: client, bucket: cfg.Bucket, types: types}
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check archive bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create archive bucket: %w", err)
	}
	log.Printf("archive: created bucket %s", a.bucket)
	return nil
}

// ObjectName is the key a session snapshot is stored under.
func ObjectName(documentID, sessionID string) string {
	return "documents/" + documentID + "/sessions/" + sessionID + ".json"
}

// PutSnapshot uploads the closing snapshot of a session and returns its key.
func (a *Archive) PutSnapshot(ctx context.Context, documentID, sessionID, closedBy string, revision int64, blocks []pt.Block) (string, error) {
	data, err := EncodeRecord(documentID, sessionID, closedBy, revision, blocks, time.Now().UTC())
	if err != nil {
		return "", err
	}
	name := ObjectName(documentID, sessionID)
	_, err = a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put archive object %s: %w", name, err)
	}
	return name, nil
}

// GetSnapshot reads back an archived session.
func (a *Archive) GetSnapshot(ctx context.Context, documentID, sessionID string) (Record, []pt.Block, error) {
	name := ObjectName(documentID, sessionID)
	obj, err := a.client.GetObject(ctx, a.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return Record{}, nil, fmt.Errorf("get archive object %s: %w", name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return Record{}, nil, fmt.Errorf("read archive object %s: %w", name, err)
	}
	return DecodeRecord(data, a.types)
}

func EncodeRecord(documentID, sessionID, closedBy string, revision int64, blocks []pt.Block, closedAt time.Time) ([]byte, error) {
	raw, err := pt.MarshalBlocks(blocks)
	if err != nil {
		return nil, fmt.Errorf("encode archived blocks: %w", err)
	}
	data, err := json.Marshal(Record{
		DocumentID: documentID,
		SessionID:  sessionID,
		Revision:   revision,
		ClosedBy:   closedBy,
		ClosedAt:   closedAt,
		Blocks:     raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode archive record: %w", err)
	}
	return data, nil
}

func DecodeRecord(data []byte, types pt.Types) (Record, []pt.Block, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, nil, fmt.Errorf("decode archive record: %w", err)
	}
	blocks, err := pt.UnmarshalBlocks(rec.Blocks, types)
	if err != nil {
		return Record{}, nil, fmt.Errorf("decode archived blocks: %w", err)
	}
	return rec, blocks, nil
}
