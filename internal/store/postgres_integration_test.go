package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/util"
)

func migratedStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := openTestDB(t)
	if err := ApplyMigrations(context.Background(), db, migrationsDir()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db, pt.DefaultTypes())
}

func sampleDoc(text string) []pt.Block {
	return []pt.Block{&pt.TextBlock{
		Key: "a", Type: "block", Style: "normal", MarkDefs: []pt.MarkDef{},
		Children: []pt.Child{&pt.Span{Key: "a0", Type: "span", Text: text, Marks: []string{}}},
	}}
}

func TestDocumentLifecyclePostgres(t *testing.T) {
	s := migratedStore(t)
	ctx := context.Background()
	id := util.NewID("doc")

	created, err := s.CreateDocument(ctx, Document{ID: id, Title: "Notes", UpdatedBy: "ada"})
	if err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if created.Revision != 0 {
		t.Fatalf("revision = %d", created.Revision)
	}
	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Blocks != nil {
		t.Fatalf("new document blocks = %#v, want undefined", got.Blocks)
	}

	patches := []patch.Patch{
		patch.SetIfMissing{Path: pt.Path{}, Value: []any{}},
		patch.Insert{Path: pt.Path{pt.Index(0)}, Position: patch.Before, Items: []any{sampleDoc("hello")[0].Value()}},
	}
	rev, err := s.AppendPatches(ctx, id, "ses_1", 0, patches, sampleDoc("hello"), "ada")
	if err != nil {
		t.Fatalf("AppendPatches: %v", err)
	}
	if rev != 1 {
		t.Fatalf("revision = %d, want 1", rev)
	}
	if _, err := s.AppendPatches(ctx, id, "ses_2", 0, nil, sampleDoc("stale"), "bob"); !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("stale append err = %v, want ErrRevisionConflict", err)
	}

	got, err = s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if span := got.Blocks[0].(*pt.TextBlock).Children[0].(*pt.Span); span.Text != "hello" {
		t.Fatalf("text = %q", span.Text)
	}

	log, err := s.ListPatches(ctx, id, 0)
	if err != nil {
		t.Fatalf("ListPatches: %v", err)
	}
	if len(log) != 1 || len(log[0].Patches) != 2 || log[0].SessionID != "ses_1" {
		t.Fatalf("log = %+v", log)
	}
	if _, ok := log[0].Patches[1].(patch.Insert); !ok {
		t.Fatalf("second patch is %T", log[0].Patches[1])
	}
}

func TestGetMissingDocumentPostgres(t *testing.T) {
	s := migratedStore(t)
	if _, err := s.GetDocument(context.Background(), "doc_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
	_, err := s.AppendPatches(context.Background(), "doc_missing", "ses", 0, nil, nil, "ada")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("append err = %v, want sql.ErrNoRows", err)
	}
}

func TestMemberRolesPostgres(t *testing.T) {
	s := migratedStore(t)
	ctx := context.Background()
	id := util.NewID("doc")
	if _, err := s.CreateDocument(ctx, Document{ID: id, Title: "Roles", UpdatedBy: "ada"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if role, _ := s.GetMemberRole(ctx, id, "ada"); role != "editor" {
		t.Fatalf("owner role = %q", role)
	}
	if role, _ := s.GetMemberRole(ctx, id, "bob"); role != "viewer" {
		t.Fatalf("stranger role = %q", role)
	}
	if err := s.SetMemberRole(ctx, Member{DocumentID: id, UserName: "bob", Role: "editor"}); err != nil {
		t.Fatalf("SetMemberRole: %v", err)
	}
	if role, _ := s.GetMemberRole(ctx, id, "bob"); role != "editor" {
		t.Fatalf("granted role = %q", role)
	}
}

func TestPatchLogRejectsUpdatePostgres(t *testing.T) {
	s := migratedStore(t)
	ctx := context.Background()
	id := util.NewID("doc")
	if _, err := s.CreateDocument(ctx, Document{ID: id, Blocks: sampleDoc("x"), UpdatedBy: "ada"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if _, err := s.AppendPatches(ctx, id, "ses", 0, []patch.Patch{patch.Unset{Path: pt.BlockPath("a")}}, []pt.Block{}, "ada"); err != nil {
		t.Fatalf("AppendPatches: %v", err)
	}

	_, err := s.DB().ExecContext(ctx, `UPDATE document_patches SET session_id='forged' WHERE document_id=$1`, id)
	if err == nil {
		t.Fatal("expected UPDATE to be blocked, but it succeeded")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected PostgreSQL error, got: %v", err)
	}
	if pgErr.SQLState() != "55000" {
		t.Fatalf("expected SQLSTATE 55000, got: %s", pgErr.SQLState())
	}
}
