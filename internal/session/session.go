// Package session runs one editing session over a portable text document. It
// owns the working value, funnels local edits, remote patch batches and
// internal fix-ups into one ordered application sequence, and emits the
// patches local edits produce, in order, to a Sink.
package session

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"ptedit/api/internal/editable"
	"ptedit/api/internal/history"
	"ptedit/api/internal/patch"
	"ptedit/api/internal/pt"
	"ptedit/api/internal/schema"
	"ptedit/api/internal/translate"
	"ptedit/api/internal/util"
)

// ErrClosed is returned by every mutation on a closed session.
var ErrClosed = errors.New("session closed")

// ErrRejected marks a sink error for a group that will never be accepted.
// The group is discarded instead of queued for another attempt.
var ErrRejected = errors.New("patches rejected")

// Sink receives the patches produced by local edits.
type Sink interface {
	Emit(patches []patch.Patch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(patches []patch.Patch) error

func (f SinkFunc) Emit(patches []patch.Patch) error { return f(patches) }

// Snapshot is a confirmed persisted document. Nil Blocks is an undefined
// document.
type Snapshot struct {
	Blocks   []pt.Block
	Revision int64
}

// Batch is one delivery from the patch feed. Remote is false for echoes of
// this session's own patches, which are not applied again. Dropped lists own
// patches the store discarded; the session then resyncs to Snapshot once its
// queued groups are confirmed.
type Batch struct {
	Patches  []patch.Patch
	Remote   bool
	Snapshot *Snapshot
	Dropped  []patch.Patch
}

type Options struct {
	ID string
	// Revision is the revision of initial, reported by Persisted until the
	// first snapshot arrives.
	Revision     int64
	Sink         Sink
	TextDiffs    bool
	HistoryLimit int
	MergeWindow  time.Duration
	Now          func() time.Time
}

type Session struct {
	id      string
	sch     *schema.Schema
	sink    Sink
	diffs   bool
	history *history.History

	mu        sync.Mutex
	value     *editable.Value
	persisted []pt.Block
	revision  int64
	// placeholder is the key of the empty block shown while the document has
	// no content of its own. It is cleared once the block is persisted.
	placeholder string
	outbox      [][]patch.Patch
	// pending counts patch groups queued or being emitted. Snapshots do not
	// replace the working value while local patches are unconfirmed.
	pending int
	// resync is the snapshot to adopt once pending drops to zero, set when
	// the store dropped some of this session's patches.
	resync *Snapshot
	closed bool

	flushMu sync.Mutex
}

// Open starts a session on the persisted document initial. Content the schema
// does not know fails with schema.ErrSchemaMismatch.
func Open(initial []pt.Block, sch *schema.Schema, opts Options) (*Session, error) {
	if sch == nil {
		sch = schema.Default()
	}
	value, err := editable.ToEditable(initial, sch)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if opts.ID == "" {
		opts.ID = util.NewID("ses")
	}
	s := &Session{
		id:    opts.ID,
		sch:   sch,
		sink:  opts.Sink,
		diffs: opts.TextDiffs,
		history: history.New(history.Options{
			Schema:      sch,
			Limit:       opts.HistoryLimit,
			MergeWindow: opts.MergeWindow,
			Now:         opts.Now,
		}),
		value:     value,
		persisted: pt.CloneBlocks(initial),
		revision:  opts.Revision,
	}
	if _, err := s.normalize(s.value); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ApplyLocalEdit applies ops as one edit group. The group is all-or-nothing:
// on error the working value is unchanged and nothing is emitted.
func (s *Session) ApplyLocalEdit(ops []editable.Operation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	before := s.value.Clone()
	resolved, err := s.applyLocal(ops, true)
	if err == nil {
		s.history.Record(resolved, before, s.value)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.flush()
}

// applyLocal applies ops, normalizes the result and queues the patches of
// both. Mark normalization runs in the blocks ops changed when marks is set.
// Inserting the placeholder is the one fix-up that emits nothing. It returns
// the resolved operations including normalization.
func (s *Session) applyLocal(ops []editable.Operation, marks bool) ([]editable.Operation, error) {
	work := s.value.Clone()
	mirror := pt.CloneBlocks(s.persisted)
	placeholder := s.placeholder
	var (
		resolved []editable.Operation
		out      []patch.Patch
	)
	apply := func(op editable.Operation) error {
		before := work.Clone()
		r, err := editable.Apply(work, op)
		if err != nil {
			return err
		}
		patches, err := translate.OperationToPatches(r, before, work, mirror, translate.Options{TextDiffs: s.diffs})
		if err != nil {
			return err
		}
		if len(patches) > 0 {
			mirror, err = patch.ApplyBlocks(mirror, s.sch.Types(), patches...)
			if err != nil {
				return fmt.Errorf("mirror: %w", err)
			}
		}
		resolved = append(resolved, r)
		out = append(out, patches...)
		return nil
	}
	for _, op := range ops {
		if err := apply(op); err != nil {
			return nil, fmt.Errorf("apply local edit: %w", err)
		}
	}
	var keys []string
	if marks {
		keys = changedBlocks(s.value, work)
	}
	for pass := 0; pass < editable.MaxNormalizePasses; pass++ {
		fixes := editable.Normalize(work, s.sch, keys...)
		if len(fixes) == 0 {
			break
		}
		for _, op := range fixes {
			if ins, ok := op.(editable.InsertNode); ok && len(ins.Path) == 1 {
				r, err := editable.Apply(work, op)
				if err != nil {
					return nil, fmt.Errorf("apply local edit: normalize: %w", err)
				}
				placeholder = ins.Node.NodeKey()
				resolved = append(resolved, r)
				continue
			}
			if err := apply(op); err != nil {
				return nil, fmt.Errorf("apply local edit: normalize: %w", err)
			}
		}
	}
	s.value = work
	s.persisted = mirror
	s.placeholder = placeholder
	if len(out) > 0 {
		s.outbox = append(s.outbox, out)
		s.pending++
	}
	s.syncPlaceholder()
	return resolved, nil
}

// changedBlocks returns the keys of the text blocks in after that are new or
// differ from the block with the same key in before.
func changedBlocks(before, after *editable.Value) []string {
	var keys []string
	for _, node := range after.Children {
		if _, ok := node.(*editable.Element); !ok {
			continue
		}
		idx := before.BlockIndex(node.NodeKey())
		if idx >= 0 && reflect.DeepEqual(editable.NodeValue(before.Children[idx]), editable.NodeValue(node)) {
			continue
		}
		keys = append(keys, node.NodeKey())
	}
	return keys
}

// normalize applies the structural fix-ups v needs without emitting patches.
// Used where the change came from the store: opening, remote batches and
// restores.
func (s *Session) normalize(v *editable.Value) ([]editable.Operation, error) {
	ops := editable.Normalize(v, s.sch)
	if len(ops) == 0 {
		return nil, nil
	}
	resolved, err := editable.ApplyAll(v, ops)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	for _, op := range resolved {
		if ins, ok := op.(editable.InsertNode); ok && len(ins.Path) == 1 {
			s.placeholder = ins.Node.NodeKey()
		}
	}
	return resolved, nil
}

// ApplyRemote applies a batch from the patch feed. Orphan and malformed
// patches are logged and dropped; the rest apply in order. A snapshot that
// disagrees with the mirrored document replaces it.
func (s *Session) ApplyRemote(batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !batch.Remote {
		snap := batch.Snapshot
		if snap == nil {
			return nil
		}
		if len(batch.Dropped) > 0 {
			if snap.Revision >= s.revision {
				log.Printf("session: %s: store dropped %d patches, resyncing to rev %d", s.id, len(batch.Dropped), snap.Revision)
				s.resync = cloneSnapshot(*snap)
			} else {
				log.Printf("session: %s: store dropped %d patches at stale rev %d", s.id, len(batch.Dropped), snap.Revision)
			}
		}
		if snap.Revision > s.revision {
			s.revision = snap.Revision
			if s.resync != nil && snap.Revision > s.resync.Revision {
				s.resync = cloneSnapshot(*snap)
			}
			if s.pending == 0 {
				s.persisted = pt.CloneBlocks(snap.Blocks)
				s.syncPlaceholder()
			}
		}
		s.settle()
		return nil
	}

	for _, p := range batch.Patches {
		s.applyRemotePatch(p)
	}
	if batch.Snapshot != nil {
		s.reconcile(*batch.Snapshot)
	}
	var fixed []editable.Operation
	if removed := s.dropPlaceholder(); removed != nil {
		fixed = append(fixed, removed)
	}
	ops, err := s.normalize(s.value)
	if err != nil {
		return fmt.Errorf("apply remote: %w", err)
	}
	fixed = append(fixed, ops...)
	s.history.RecordRemote(nil, fixed)
	s.settle()
	return nil
}

func (s *Session) applyRemotePatch(p patch.Patch) {
	ops, err := translate.PatchToOperations(p, s.value, s.sch)
	if err != nil {
		if errors.Is(err, translate.ErrOrphanPatch) {
			log.Printf("session: %s: dropped orphan patch %s %s: %v", s.id, p.Type(), p.Target(), err)
		} else {
			log.Printf("session: %s: dropped invalid patch %s %s: %v", s.id, p.Type(), p.Target(), err)
		}
		return
	}
	resolved, err := editable.ApplyAll(s.value, ops)
	if err != nil {
		log.Printf("session: %s: dropped patch %s %s: %v", s.id, p.Type(), p.Target(), err)
		return
	}
	mirror, err := patch.ApplyBlocks(s.persisted, s.sch.Types(), p)
	if err != nil {
		log.Printf("session: %s: mirror out of sync after %s %s: %v", s.id, p.Type(), p.Target(), err)
	} else {
		s.persisted = mirror
	}
	s.history.RecordRemote([]patch.Patch{p}, resolved)
}

// reconcile makes snap the mirrored document and, when it differs from what
// the session believed was persisted, rebuilds the working value from it.
// Snapshots older than the last one seen, or arriving while local patches
// are unconfirmed, only advance the revision.
func (s *Session) reconcile(snap Snapshot) {
	if snap.Revision <= s.revision {
		return
	}
	s.revision = snap.Revision
	if s.resync != nil {
		s.resync = cloneSnapshot(snap)
	}
	if s.pending > 0 {
		return
	}
	if reflect.DeepEqual(pt.BlocksValue(snap.Blocks), pt.BlocksValue(s.persisted)) {
		return
	}
	s.persisted = pt.CloneBlocks(snap.Blocks)
	if err := s.replaceValue(snap.Blocks); err != nil {
		log.Printf("session: %s: reconcile snapshot rev %d: %v", s.id, snap.Revision, err)
	}
}

// settle adopts a resync snapshot once no local group is unconfirmed.
func (s *Session) settle() {
	if s.resync == nil || s.pending > 0 {
		return
	}
	snap := s.resync
	s.resync = nil
	s.persisted = pt.CloneBlocks(snap.Blocks)
	if !reflect.DeepEqual(pt.BlocksValue(editable.ToBlocks(s.value)), pt.BlocksValue(snap.Blocks)) {
		if err := s.replaceValue(snap.Blocks); err != nil {
			log.Printf("session: %s: resync rev %d: %v", s.id, snap.Revision, err)
		}
		if _, err := s.normalize(s.value); err != nil {
			log.Printf("session: %s: resync rev %d: %v", s.id, snap.Revision, err)
		}
	}
	s.syncPlaceholder()
}

func cloneSnapshot(snap Snapshot) *Snapshot {
	return &Snapshot{Blocks: pt.CloneBlocks(snap.Blocks), Revision: snap.Revision}
}

// replaceValue turns the working value into blocks through a document set,
// keeping the keys and caret of content that survives.
func (s *Session) replaceValue(blocks []pt.Block) error {
	var p patch.Patch = patch.Set{Path: pt.Path{}, Value: pt.BlocksValue(blocks)}
	if blocks == nil {
		p = patch.Unset{Path: pt.Path{}}
	}
	ops, err := translate.PatchToOperations(p, s.value, s.sch)
	if err != nil {
		return err
	}
	resolved, err := editable.ApplyAll(s.value, ops)
	if err != nil {
		return err
	}
	s.history.RecordRemote(nil, resolved)
	return nil
}

// syncPlaceholder forgets the placeholder once it is persisted or gone.
func (s *Session) syncPlaceholder() {
	if s.placeholder == "" {
		return
	}
	if pt.IndexOfKey(s.persisted, s.placeholder) >= 0 || s.value.BlockIndex(s.placeholder) < 0 {
		s.placeholder = ""
	}
}

// dropPlaceholder removes a still-empty unpersisted placeholder once remote
// content has arrived next to it.
func (s *Session) dropPlaceholder() editable.Operation {
	s.syncPlaceholder()
	if s.placeholder == "" || len(s.value.Children) < 2 {
		return nil
	}
	idx := s.value.BlockIndex(s.placeholder)
	el, ok := s.value.Children[idx].(*editable.Element)
	if !ok || !emptyElement(el) {
		return nil
	}
	resolved, err := editable.Apply(s.value, editable.RemoveNode{Path: editable.Path{idx}})
	if err != nil {
		log.Printf("session: %s: remove placeholder: %v", s.id, err)
		return nil
	}
	s.placeholder = ""
	return resolved
}

func emptyElement(el *editable.Element) bool {
	if len(el.Children) != 1 {
		return false
	}
	t, ok := el.Children[0].(*editable.Text)
	return ok && t.Text == "" && len(t.Marks) == 0
}

// Undo reverts the latest local edit group and reports whether one existed.
func (s *Session) Undo() bool {
	return s.step(s.history.Undo)
}

// Redo reapplies the latest undone group and reports whether one existed.
func (s *Session) Redo() bool {
	return s.step(s.history.Redo)
}

func (s *Session) step(next func(*editable.Value) (history.Step, bool, error)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	step, ok, err := next(s.value)
	if ok {
		if err == nil {
			_, err = s.applyLocal(step.Operations, false)
		}
		if err != nil {
			log.Printf("session: %s: undo step failed, restoring persisted document: %v", s.id, err)
			s.restore()
		} else {
			s.history.Applied(step)
			if step.Selection != nil {
				if _, err := editable.Apply(s.value, editable.SetSelection{Selection: step.Selection}); err != nil {
					log.Printf("session: %s: restore selection: %v", s.id, err)
				}
			}
		}
	}
	s.mu.Unlock()
	if err := s.flush(); err != nil {
		log.Printf("session: %s: flush: %v", s.id, err)
	}
	return ok
}

// restore replaces the working value with the mirrored persisted document.
func (s *Session) restore() {
	if err := s.replaceValue(s.persisted); err != nil {
		log.Printf("session: %s: restore: %v", s.id, err)
		value, err := editable.ToEditable(s.persisted, s.sch)
		if err != nil {
			log.Printf("session: %s: restore: %v", s.id, err)
			return
		}
		s.value = value
		s.history.Clear()
	}
	if _, err := s.normalize(s.value); err != nil {
		log.Printf("session: %s: restore: %v", s.id, err)
	}
}

// CanUndo and CanRedo report whether a step is available.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// WorkingValue returns a copy of the working value for rendering.
func (s *Session) WorkingValue() *editable.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value.Clone()
}

// Blocks returns the working value in persisted form.
func (s *Session) Blocks() []pt.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return editable.ToBlocks(s.value)
}

// Persisted returns the document as confirmed and emitted so far, and the
// revision of the last snapshot seen.
func (s *Session) Persisted() ([]pt.Block, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pt.CloneBlocks(s.persisted), s.revision
}

// Close flushes pending patches and rejects further mutations.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()
	return s.flush()
}

// flush emits queued patch groups outside the state lock, one flusher at a
// time so groups leave in the order they were queued.
func (s *Session) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	pending := s.outbox
	s.outbox = nil
	if s.sink == nil {
		s.pending -= len(pending)
		s.settle()
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	var rejected error
	for i, patches := range pending {
		if err := s.sink.Emit(patches); err != nil {
			if !errors.Is(err, ErrRejected) {
				s.requeue(pending[i:])
				return fmt.Errorf("emit patches: %w", err)
			}
			log.Printf("session: %s: discarded rejected group of %d patches: %v", s.id, len(patches), err)
			if rejected == nil {
				rejected = fmt.Errorf("emit patches: %w", err)
			}
		}
		s.mu.Lock()
		s.pending--
		s.settle()
		s.mu.Unlock()
	}
	return rejected
}

func (s *Session) requeue(groups [][]patch.Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(append([][]patch.Patch(nil), groups...), s.outbox...)
}
