package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ptedit/api/internal/auth"
	"ptedit/api/internal/config"
	"ptedit/api/internal/editable"
	"ptedit/api/internal/gitrepo"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/rbac"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/search"
	"ptedit/api/internal/session"
	"ptedit/api/internal/store"
	"ptedit/api/internal/util"
)

const (
	persistTimeout     = 10 * time.Second
	maxPersistAttempts = 3
	maxRepairPasses    = 64
	defaultHistorySize = 50
)

type dataStore interface {
	CreateDocument(context.Context, store.Document) (store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	ListDocuments(context.Context) ([]store.Document, error)
	AppendPatches(context.Context, string, string, int64, []patch.Patch, []pt.Block, string) (int64, error)
	ListPatches(context.Context, string, int64) ([]store.PatchRecord, error)
	GetMemberRole(context.Context, string, string) (string, error)
	SetMemberRole(context.Context, store.Member) error
	Ping(ctx context.Context) error
}

type gitService interface {
	EnsureDocumentRepo(string, gitrepo.Snapshot, string) error
	CommitSnapshot(string, gitrepo.Snapshot, string, string) (gitrepo.CommitInfo, bool, error)
	History(string, int) ([]gitrepo.CommitInfo, error)
	SnapshotAt(string, string) (gitrepo.Snapshot, error)
}

// patchFeed carries confirmed patch batches between processes.
type patchFeed interface {
	Publish(ctx context.Context, documentID, origin string, patches []patch.Patch, snap *session.Snapshot) error
	Source(documentID, origin string) session.Source
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexDocument(search.DocumentRecord)
}

type snapshotArchive interface {
	PutSnapshot(ctx context.Context, documentID, sessionID, closedBy string, revision int64, blocks []pt.Block) (string, error)
}

// Deps are the collaborators of a Service. Feed, Search and Archive are optional.
type Deps struct {
	Store   dataStore
	Git     gitService
	Feed    patchFeed
	Search  searchIndex
	Archive snapshotArchive
	Schema  *schema.Schema
}

// document is the in-process view of one stored document shared by its
// live sessions. mu serializes writes to the store.
type document struct {
	id string

	mu       sync.Mutex
	title    string
	blocks   []pt.Block
	revision int64
	sessions map[string]*liveSession
}

// snapshot returns the document as last committed. The caller holds mu.
func (d *document) snapshot() *session.Snapshot {
	return &session.Snapshot{Blocks: d.blocks, Revision: d.revision}
}

type liveSession struct {
	id     string
	user   string
	role   rbac.Role
	doc    *document
	sess   *session.Session
	cancel context.CancelFunc
	opened time.Time
}

type Service struct {
	cfg     config.Config
	sch     *schema.Schema
	types   pt.Types
	store   dataStore
	git     gitService
	feed    patchFeed
	search  searchIndex
	archive snapshotArchive
	tokens  *auth.Issuer

	mu       sync.Mutex
	docs     map[string]*document
	sessions map[string]*liveSession
}

func New(cfg config.Config, deps Deps) *Service {
	sch := deps.Schema
	if sch == nil {
		sch = schema.Default()
	}
	return &Service{
		cfg:      cfg,
		sch:      sch,
		types:    sch.Types(),
		store:    deps.Store,
		git:      deps.Git,
		feed:     deps.Feed,
		search:   deps.Search,
		archive:  deps.Archive,
		tokens:   auth.NewIssuer(cfg.TokenSecret, cfg.TokenTTL),
		docs:     make(map[string]*document),
		sessions: make(map[string]*liveSession),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Types() pt.Types {
	return s.types
}

// Login issues a user token. There are no accounts; the name is the identity.
func (s *Service) Login(name string) (map[string]any, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	token, expiresAt, err := s.tokens.Issue(auth.Claims{Sub: userName, JTI: util.NewID("jti")})
	if err != nil {
		return nil, err
	}
	return map[string]any{"token": token, "userName": userName, "expiresAt": expiresAt}, nil
}

func (s *Service) ParseToken(token string) (auth.Claims, error) {
	return s.tokens.Parse(token)
}

func (s *Service) role(ctx context.Context, documentID, userName string) (rbac.Role, error) {
	role, err := s.store.GetMemberRole(ctx, documentID, userName)
	if err != nil {
		return "", err
	}
	return rbac.Normalize(role), nil
}

func (s *Service) authorize(ctx context.Context, documentID, userName string, action rbac.Action) (store.Document, rbac.Role, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, "", err
	}
	role, err := s.role(ctx, documentID, userName)
	if err != nil {
		return store.Document{}, "", err
	}
	if !rbac.Can(role, action) {
		return store.Document{}, "", errForbidden
	}
	return doc, role, nil
}

func (s *Service) CreateDocument(ctx context.Context, title string, blocks []pt.Block, userName string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	if err := s.sch.Validate(blocks); err != nil {
		return nil, err
	}
	doc, err := s.store.CreateDocument(ctx, store.Document{
		ID:        util.NewID("doc"),
		Title:     title,
		Blocks:    blocks,
		UpdatedBy: userName,
	})
	if err != nil {
		return nil, err
	}
	if err := s.git.EnsureDocumentRepo(doc.ID, gitrepo.Snapshot{Title: doc.Title, Revision: doc.Revision, Blocks: doc.Blocks}, userName); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexDocument(search.RecordFromBlocks(doc.ID, doc.Title, doc.Revision, userName, doc.Blocks))
	}
	return documentView(doc), nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]map[string]any, error) {
	documents, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(documents))
	for _, doc := range documents {
		items = append(items, documentSummary(doc))
	}
	return items, nil
}

func (s *Service) GetDocument(ctx context.Context, documentID, userName string) (map[string]any, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	role, err := s.role(ctx, documentID, userName)
	if err != nil {
		return nil, err
	}
	view := documentView(doc)
	view["role"] = role
	return view, nil
}

func (s *Service) SetMember(ctx context.Context, documentID, userName, member, role string) error {
	if _, _, err := s.authorize(ctx, documentID, userName, rbac.ActionShare); err != nil {
		return err
	}
	member = strings.TrimSpace(member)
	if member == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userName is required", nil)
	}
	if r := rbac.Role(role); r != rbac.RoleEditor && r != rbac.RoleViewer {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be editor or viewer", nil)
	}
	return s.store.SetMemberRole(ctx, store.Member{DocumentID: documentID, UserName: member, Role: role})
}

// Patches returns the patch log of a document after revision since.
func (s *Service) Patches(ctx context.Context, documentID, userName string, since int64) (map[string]any, error) {
	if _, _, err := s.authorize(ctx, documentID, userName, rbac.ActionRead); err != nil {
		return nil, err
	}
	records, err := s.store.ListPatches(ctx, documentID, since)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		items = append(items, map[string]any{
			"revision":  rec.Revision,
			"sessionId": rec.SessionID,
			"patches":   patch.List(rec.Patches),
			"createdAt": rec.CreatedAt,
		})
	}
	return map[string]any{"documentId": documentID, "since": since, "items": items}, nil
}

func (s *Service) History(ctx context.Context, documentID, userName string, limit int) (map[string]any, error) {
	if _, _, err := s.authorize(ctx, documentID, userName, rbac.ActionRead); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistorySize
	}
	commits, err := s.git.History(documentID, limit)
	if err != nil {
		return nil, err
	}
	if commits == nil {
		commits = []gitrepo.CommitInfo{}
	}
	return map[string]any{"documentId": documentID, "commits": commits}, nil
}

func (s *Service) SnapshotAt(ctx context.Context, documentID, userName, hash string) (map[string]any, error) {
	if _, _, err := s.authorize(ctx, documentID, userName, rbac.ActionRead); err != nil {
		return nil, err
	}
	snap, err := s.git.SnapshotAt(documentID, hash)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"documentId": documentID,
		"hash":       hash,
		"title":      snap.Title,
		"revision":   snap.Revision,
		"blocks":     pt.BlocksValue(snap.Blocks),
	}, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// OpenSession starts an editing session on documentID for userName and
// returns a token bound to it.
func (s *Service) OpenSession(ctx context.Context, documentID, userName string) (map[string]any, error) {
	stored, role, err := s.authorize(ctx, documentID, userName, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if err := s.git.EnsureDocumentRepo(documentID, gitrepo.Snapshot{Title: stored.Title, Revision: stored.Revision, Blocks: stored.Blocks}, userName); err != nil {
		return nil, err
	}

	doc := s.document(stored)
	live := &liveSession{id: util.NewID("ses"), user: userName, role: role, doc: doc, opened: time.Now()}

	doc.mu.Lock()
	if err := s.sch.Validate(doc.blocks); err != nil {
		doc.mu.Unlock()
		return nil, err
	}
	sess, err := session.Open(doc.blocks, s.sch, session.Options{
		ID:           live.id,
		Revision:     doc.revision,
		Sink:         session.SinkFunc(func(patches []patch.Patch) error { return s.persist(live, patches) }),
		TextDiffs:    s.cfg.TextDiffs,
		HistoryLimit: s.cfg.HistoryLimit,
		MergeWindow:  s.cfg.MergeWindow,
	})
	if err != nil {
		doc.mu.Unlock()
		return nil, err
	}
	live.sess = sess
	doc.sessions[live.id] = live
	doc.mu.Unlock()

	if err := s.follow(ctx, live); err != nil {
		s.forget(live)
		_ = sess.Close()
		return nil, err
	}

	s.mu.Lock()
	s.sessions[live.id] = live
	s.mu.Unlock()

	token, expiresAt, err := s.tokens.Issue(auth.Claims{
		Sub:      userName,
		Role:     string(role),
		Session:  live.id,
		Document: documentID,
		JTI:      util.NewID("jti"),
	})
	if err != nil {
		return nil, err
	}
	log.Printf("app: opened session %s on %s for %s (%s)", live.id, documentID, userName, role)
	view := s.sessionView(live)
	view["token"] = token
	view["expiresAt"] = expiresAt
	return view, nil
}

// document returns the shared view of stored, refreshing it when the store
// is ahead of what this process has seen.
func (s *Service) document(stored store.Document) *document {
	s.mu.Lock()
	doc, ok := s.docs[stored.ID]
	if !ok {
		doc = &document{id: stored.ID, sessions: make(map[string]*liveSession)}
		s.docs[stored.ID] = doc
	}
	s.mu.Unlock()

	doc.mu.Lock()
	if !ok || stored.Revision > doc.revision {
		doc.title = stored.Title
		doc.blocks = stored.Blocks
		doc.revision = stored.Revision
	}
	doc.mu.Unlock()
	return doc
}

// follow subscribes live to the patch feed. Writes that landed between
// loading the document and subscribing are caught up with a snapshot.
func (s *Service) follow(ctx context.Context, live *liveSession) error {
	if s.feed == nil {
		return nil
	}
	feedCtx, cancel := context.WithCancel(context.Background())
	batches, err := s.feed.Source(live.doc.id, live.id).Subscribe(feedCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe session %s: %w", live.id, err)
	}
	live.cancel = cancel
	go func() {
		if err := session.NewRouter(live.sess).Run(feedCtx, batches); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("app: session %s feed stopped: %v", live.id, err)
		}
	}()

	latest, err := s.store.GetDocument(ctx, live.doc.id)
	if err != nil {
		return err
	}
	if _, rev := live.sess.Persisted(); latest.Revision > rev {
		return live.sess.ApplyRemote(session.Batch{
			Remote:   true,
			Snapshot: &session.Snapshot{Blocks: latest.Blocks, Revision: latest.Revision},
		})
	}
	return nil
}

// persist is the sink of every live session: it appends patches to the
// store, confirms them to the emitting session and forwards them to the
// other sessions on the document. Patches whose target another writer
// removed are dropped and the rest persist; the confirmation then carries
// the dropped patches so the session resyncs.
func (s *Service) persist(live *liveSession, patches []patch.Patch) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	doc := live.doc
	doc.mu.Lock()
	defer doc.mu.Unlock()

	var dropped []patch.Patch
	kept, snap, err := s.commit(ctx, doc, live.id, live.user, func(blocks []pt.Block) ([]patch.Patch, []pt.Block, error) {
		dropped = nil
		kept := make([]patch.Patch, 0, len(patches))
		next := blocks
		for _, p := range patches {
			out, err := patch.ApplyBlocks(next, s.types, p)
			if errors.Is(err, patch.ErrNotFound) {
				dropped = append(dropped, p)
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s %s: %w", session.ErrRejected, p.Type(), p.Target(), err)
			}
			next, kept = out, append(kept, p)
		}
		return kept, next, nil
	})
	if errors.Is(err, session.ErrRejected) {
		s.confirm(live, session.Batch{Snapshot: doc.snapshot(), Dropped: patches})
	}
	if err != nil {
		return fmt.Errorf("persist patches: %w", err)
	}
	if len(dropped) > 0 {
		log.Printf("app: %s: session %s: dropped %d orphan patches at rev %d", doc.id, live.id, len(dropped), snap.Revision)
	}
	s.confirm(live, session.Batch{Snapshot: snap, Dropped: dropped})
	if len(kept) > 0 {
		s.broadcast(ctx, doc, live.id, kept, snap)
	}
	return nil
}

// RepairDocument applies schema resolutions to documentID until it
// validates. The repair is one revision, forwarded to open sessions.
func (s *Service) RepairDocument(ctx context.Context, documentID, userName string) (map[string]any, error) {
	stored, _, err := s.authorize(ctx, documentID, userName, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	doc := s.document(stored)
	doc.mu.Lock()
	defer doc.mu.Unlock()

	origin := util.NewID("rep")
	var applied []schema.Resolution
	patches, snap, err := s.commit(ctx, doc, origin, userName, func(blocks []pt.Block) ([]patch.Patch, []pt.Block, error) {
		applied = nil
		var out []patch.Patch
		next := blocks
		for pass := 0; pass < maxRepairPasses; pass++ {
			r := s.sch.Check(next, util.NewKey)
			if r == nil {
				return out, next, nil
			}
			repaired, err := patch.ApplyBlocks(next, s.types, r.Patches...)
			if err != nil {
				return nil, nil, fmt.Errorf("repair %q at %s: %w", r.Action, r.Path, err)
			}
			next, out, applied = repaired, append(out, r.Patches...), append(applied, *r)
		}
		return nil, nil, fmt.Errorf("%w: repair did not converge", schema.ErrSchemaMismatch)
	})
	if err != nil {
		return nil, fmt.Errorf("repair document: %w", err)
	}
	if len(patches) > 0 {
		log.Printf("app: %s: repaired with %d resolutions at rev %d", doc.id, len(applied), snap.Revision)
		s.broadcast(ctx, doc, origin, patches, snap)
	}
	if applied == nil {
		applied = []schema.Resolution{}
	}
	return map[string]any{
		"id":          doc.id,
		"revision":    snap.Revision,
		"resolutions": applied,
		"blocks":      pt.BlocksValue(snap.Blocks),
	}, nil
}

// planFunc computes the patches to append over blocks and the document they
// produce. No patches means nothing to append.
type planFunc func(blocks []pt.Block) ([]patch.Patch, []pt.Block, error)

// commit appends what plan produces to the shared document, reloading and
// planning again on revision conflicts. The caller holds doc.mu.
func (s *Service) commit(ctx context.Context, doc *document, origin, user string, plan planFunc) ([]patch.Patch, *session.Snapshot, error) {
	for attempt := 1; ; attempt++ {
		patches, next, err := plan(doc.blocks)
		if err != nil {
			return nil, nil, err
		}
		if len(patches) == 0 {
			return nil, doc.snapshot(), nil
		}
		rev, err := s.store.AppendPatches(ctx, doc.id, origin, doc.revision, patches, next, user)
		if err == nil {
			doc.blocks, doc.revision = next, rev
			return patches, doc.snapshot(), nil
		}
		if !errors.Is(err, store.ErrRevisionConflict) || attempt >= maxPersistAttempts {
			return nil, nil, err
		}
		latest, loadErr := s.store.GetDocument(ctx, doc.id)
		if loadErr != nil {
			return nil, nil, fmt.Errorf("reload: %w", loadErr)
		}
		log.Printf("app: %s: revision conflict at %d, retrying at %d", doc.id, doc.revision, latest.Revision)
		doc.blocks, doc.revision = latest.Blocks, latest.Revision
	}
}

func (s *Service) confirm(live *liveSession, batch session.Batch) {
	if err := live.sess.ApplyRemote(batch); err != nil && !errors.Is(err, session.ErrClosed) {
		log.Printf("app: session %s: confirm rev %d: %v", live.id, batch.Snapshot.Revision, err)
	}
}

// broadcast hands committed patches to every session but origin, through
// the feed when one is configured.
func (s *Service) broadcast(ctx context.Context, doc *document, origin string, patches []patch.Patch, snap *session.Snapshot) {
	if s.feed != nil {
		if err := s.feed.Publish(ctx, doc.id, origin, patches, snap); err != nil {
			log.Printf("app: %s: publish rev %d: %v", doc.id, snap.Revision, err)
		}
		return
	}
	for id, other := range doc.sessions {
		if id == origin {
			continue
		}
		if err := other.sess.ApplyRemote(session.Batch{Patches: patches, Remote: true, Snapshot: snap}); err != nil && !errors.Is(err, session.ErrClosed) {
			log.Printf("app: session %s: forward rev %d: %v", id, snap.Revision, err)
		}
	}
}

func (s *Service) live(claims auth.Claims, sessionID string, action rbac.Action) (*liveSession, error) {
	if claims.Session != sessionID {
		return nil, errForbidden
	}
	s.mu.Lock()
	live, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, errSessionNotFound
	}
	if live.user != claims.Sub || !rbac.Can(live.role, action) {
		return nil, errForbidden
	}
	return live, nil
}

func (s *Service) GetSession(claims auth.Claims, sessionID string) (map[string]any, error) {
	live, err := s.live(claims, sessionID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.sessionView(live), nil
}

func (s *Service) ApplyOperations(claims auth.Claims, sessionID string, ops []editable.Operation) (map[string]any, error) {
	live, err := s.live(claims, sessionID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := live.sess.ApplyLocalEdit(ops); err != nil {
		return nil, err
	}
	return s.sessionView(live), nil
}

// ApplyPatches feeds an externally received batch into one session.
func (s *Service) ApplyPatches(claims auth.Claims, sessionID string, batch session.Batch) (map[string]any, error) {
	live, err := s.live(claims, sessionID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if err := live.sess.ApplyRemote(batch); err != nil {
		return nil, err
	}
	return s.sessionView(live), nil
}

func (s *Service) Undo(claims auth.Claims, sessionID string) (map[string]any, error) {
	return s.step(claims, sessionID, (*session.Session).Undo)
}

func (s *Service) Redo(claims auth.Claims, sessionID string) (map[string]any, error) {
	return s.step(claims, sessionID, (*session.Session).Redo)
}

func (s *Service) step(claims auth.Claims, sessionID string, fn func(*session.Session) bool) (map[string]any, error) {
	live, err := s.live(claims, sessionID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	applied := fn(live.sess)
	view := s.sessionView(live)
	view["applied"] = applied
	return view, nil
}

// CloseSession flushes the session, commits the confirmed document to git,
// reindexes it and archives the closing snapshot.
func (s *Service) CloseSession(ctx context.Context, claims auth.Claims, sessionID string) (map[string]any, error) {
	live, err := s.live(claims, sessionID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, live)
}

func (s *Service) close(ctx context.Context, live *liveSession) (map[string]any, error) {
	flushErr := live.sess.Close()
	if errors.Is(flushErr, session.ErrClosed) {
		return nil, flushErr
	}
	if flushErr != nil {
		log.Printf("app: session %s: final flush: %v", live.id, flushErr)
	}
	s.forget(live)

	doc := live.doc
	doc.mu.Lock()
	title, blocks, revision := doc.title, pt.CloneBlocks(doc.blocks), doc.revision
	doc.mu.Unlock()

	payload := map[string]any{
		"sessionId":  live.id,
		"documentId": doc.id,
		"revision":   revision,
		"committed":  false,
	}
	if flushErr != nil {
		payload["unsaved"] = true
	}

	message := fmt.Sprintf("Session %s by %s", live.id, live.user)
	info, changed, err := s.git.CommitSnapshot(doc.id, gitrepo.Snapshot{Title: title, Revision: revision, Blocks: blocks}, live.user, message)
	if err != nil {
		log.Printf("app: session %s: commit snapshot: %v", live.id, err)
	} else {
		payload["committed"] = changed
		payload["commit"] = info
	}
	if s.search != nil {
		s.search.IndexDocument(search.RecordFromBlocks(doc.id, title, revision, live.user, blocks))
	}
	if s.archive != nil {
		key, err := s.archive.PutSnapshot(ctx, doc.id, live.id, live.user, revision, blocks)
		if err != nil {
			log.Printf("app: session %s: archive: %v", live.id, err)
		} else {
			payload["archive"] = key
		}
	}
	log.Printf("app: closed session %s on %s at rev %d", live.id, doc.id, revision)
	return payload, nil
}

func (s *Service) forget(live *liveSession) {
	if live.cancel != nil {
		live.cancel()
	}
	live.doc.mu.Lock()
	delete(live.doc.sessions, live.id)
	live.doc.mu.Unlock()
	s.mu.Lock()
	delete(s.sessions, live.id)
	s.mu.Unlock()
}

// Shutdown closes every live session.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	open := make([]*liveSession, 0, len(s.sessions))
	for _, live := range s.sessions {
		open = append(open, live)
	}
	s.mu.Unlock()
	sort.Slice(open, func(i, j int) bool { return open[i].opened.Before(open[j].opened) })
	for _, live := range open {
		if _, err := s.close(ctx, live); err != nil {
			log.Printf("app: shutdown session %s: %v", live.id, err)
		}
	}
}

func (s *Service) sessionView(live *liveSession) map[string]any {
	value := live.sess.WorkingValue()
	_, revision := live.sess.Persisted()
	return map[string]any{
		"sessionId":  live.id,
		"documentId": live.doc.id,
		"role":       live.role,
		"revision":   revision,
		"blocks":     pt.BlocksValue(editable.ToBlocks(value)),
		"selection":  value.Selection,
		"canUndo":    live.sess.CanUndo(),
		"canRedo":    live.sess.CanRedo(),
	}
}

func documentSummary(doc store.Document) map[string]any {
	return map[string]any{
		"id":        doc.ID,
		"title":     doc.Title,
		"revision":  doc.Revision,
		"updatedBy": doc.UpdatedBy,
		"updatedAt": doc.UpdatedAt,
	}
}

func documentView(doc store.Document) map[string]any {
	view := documentSummary(doc)
	view["blocks"] = pt.BlocksValue(doc.Blocks)
	view["createdAt"] = doc.CreatedAt
	return view
}
