// Package editor coordinates the local draft, the save queue and the
// reconciliation engine for one (story, branch) view.
//
// Every server-backed operation applies its change to the draft first,
// then calls the service. On failure the draft is restored to the
// pre-operation snapshot and a Notification is emitted. On success the
// placeholder id is swapped for the server id and the view is refreshed.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
	"plotline/internal/domain/services/generation"
	storySvc "plotline/internal/domain/services/story"
	"plotline/internal/draft"
	"plotline/internal/reconcile"
	"plotline/internal/savequeue"
)

// API is the slice of the story service the session uses.
// *storyapi.Client satisfies it.
type API interface {
	savequeue.Writer
	reconcile.PathFetcher

	GetTree(ctx context.Context, storyName string) ([]story.TreeEntry, error)
	Append(ctx context.Context, req *storySvc.AppendRequest) (*story.Snippet, error)
	InsertAbove(ctx context.Context, req *storySvc.InsertRequest) (*story.Snippet, error)
	InsertBelow(ctx context.Context, req *storySvc.InsertRequest) (*story.Snippet, error)
	Delete(ctx context.Context, storyName, id string) error
	Regenerate(ctx context.Context, req *storySvc.RegenerateRequest) (*story.Snippet, error)
	ChooseActiveChild(ctx context.Context, req *storySvc.ChooseActiveChildRequest) error
	ListBranches(ctx context.Context, storyName string) ([]story.Branch, error)
	CreateBranch(ctx context.Context, req *storySvc.CreateBranchRequest) (*story.Branch, error)
	MoveBranch(ctx context.Context, req *storySvc.MoveBranchRequest) (*story.Branch, error)
	DeleteBranch(ctx context.Context, storyName, name string) error
	Continue(ctx context.Context, req *generation.ContinueRequest) (*generation.ContinueResponse, error)
}

// beaconDrainer is implemented by clients that deliver keepalive beacons
type beaconDrainer interface {
	DrainBeacons(ctx context.Context) error
}

// Options configures a Session
type Options struct {
	Story  string
	Branch string
	Model  string
	Params generation.ModelParams
	// Context is forwarded to generation requests (lore, style notes)
	Context string

	SaveDelay time.Duration
	Clock     savequeue.Clock
	Fallback  savequeue.Fallback
	// PendingGuard defers tail adoption while local edits are queued
	PendingGuard bool

	OnNotify func(Notification)
	Logger   *slog.Logger
}

// Session is the application state for one editor
type Session struct {
	api      API
	draft    *draft.Store
	queue    *savequeue.Queue
	engine   *reconcile.Engine
	model    string
	params   generation.ModelParams
	genCtx   string
	onNotify func(Notification)
	logger   *slog.Logger

	// opMu serializes operations; timers and beacons run outside it
	opMu sync.Mutex
	key  reconcile.Key
}

// NewSession creates a session. Call Open to load the branch.
func NewSession(api API, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	branch := opts.Branch
	if branch == "" {
		branch = story.DefaultBranch
	}

	s := &Session{
		api:      api,
		draft:    draft.NewStore(),
		model:    opts.Model,
		params:   opts.Params,
		genCtx:   opts.Context,
		onNotify: opts.OnNotify,
		logger:   logger,
		key:      reconcile.Key{Story: opts.Story, Branch: branch},
	}

	s.queue = savequeue.New(api, savequeue.Options{
		Delay:    opts.SaveDelay,
		Clock:    opts.Clock,
		Fallback: opts.Fallback,
		Logger:   logger,
		OnError: func(entry savequeue.Entry, err error) {
			s.notifyError("save", err)
		},
	})

	engineOpts := []reconcile.Option{reconcile.WithLogger(logger)}
	if opts.PendingGuard {
		engineOpts = append(engineOpts, reconcile.WithPendingGuard(s.queue))
	}
	s.engine = reconcile.New(s.draft, engineOpts...)
	return s
}

// Chunks returns the current draft
func (s *Session) Chunks() []draft.Chunk { return s.draft.Chunks() }

// Text returns the draft joined as the service joins a path
func (s *Session) Text() string { return draft.Text(s.draft.Chunks()) }

// Key returns the (story, branch) being edited
func (s *Session) Key() reconcile.Key {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.key
}

// History returns the undo stack, newest first
func (s *Session) History() []draft.HistoryEntry { return s.draft.History() }

// Draft exposes the local draft store
func (s *Session) Draft() *draft.Store { return s.draft }

// Open loads the current branch into the draft
func (s *Session) Open(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	return err
}

// Refresh runs one reconciliation pass against the branch path
func (s *Session) Refresh(ctx context.Context) (reconcile.Decision, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) (reconcile.Decision, error) {
	decision, err := s.engine.Sync(ctx, s.api, s.key)
	if err != nil {
		s.notifyError("refresh", err)
		return decision, err
	}
	return decision, nil
}

// invalidate refreshes after a successful operation. A failed refresh is
// reported but does not fail the operation.
func (s *Session) invalidate(ctx context.Context) {
	_, _ = s.refresh(ctx)
}

// Edit changes a chunk's text locally and queues the save
func (s *Session) Edit(id, text string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if draft.IsLocalID(id) {
		err := fmt.Errorf("%w: chunk %s is not saved yet", domain.ErrValidation, id)
		s.notifyError("edit", err)
		return err
	}

	before := s.draft.Chunks()
	chunk, err := s.draft.UpdateChunk(id, draft.Patch{Text: &text})
	if err != nil {
		s.notifyError("edit", err)
		return err
	}
	s.draft.PushHistory(draft.ActionEdit, before, s.draft.Chunks())
	s.queue.Queue(chunk.ID, chunk.Text, chunk.Author.Kind())
	return nil
}

// Append adds a chunk after the last one
func (s *Session) Append(ctx context.Context, text string, author draft.Author) (draft.Chunk, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	action := draft.ActionInsert
	if author == draft.AuthorLLM {
		action = draft.ActionGenerate
	}
	return s.appendLocked(ctx, text, author, action)
}

func (s *Session) appendLocked(ctx context.Context, text string, author draft.Author, action draft.Action) (draft.Chunk, error) {
	before := s.draft.Chunks()
	local := s.draft.AppendChunk(draft.Chunk{Text: text, Author: author})

	req := &storySvc.AppendRequest{
		Story:   s.key.Story,
		Content: text,
		Kind:    author.Kind(),
		Branch:  s.key.Branch,
	}
	if len(before) > 0 {
		parent := before[len(before)-1].ID
		req.ParentID = &parent
	}

	snippet, err := s.api.Append(ctx, req)
	if err != nil {
		s.rollback("append", before, err)
		return draft.Chunk{}, err
	}
	return s.confirm(ctx, action, before, local, snippet), nil
}

// InsertAbove inserts a chunk before targetID
func (s *Session) InsertAbove(ctx context.Context, targetID, text string) (draft.Chunk, error) {
	return s.insert(ctx, "insert_above", targetID, text, 0, s.api.InsertAbove)
}

// InsertBelow inserts a chunk after targetID
func (s *Session) InsertBelow(ctx context.Context, targetID, text string) (draft.Chunk, error) {
	return s.insert(ctx, "insert_below", targetID, text, 1, s.api.InsertBelow)
}

type insertFunc func(ctx context.Context, req *storySvc.InsertRequest) (*story.Snippet, error)

func (s *Session) insert(ctx context.Context, op, targetID, text string, offset int, call insertFunc) (draft.Chunk, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	before := s.draft.Chunks()
	index := s.draft.IndexOf(targetID)
	if index < 0 {
		err := fmt.Errorf("%w: chunk %s is not in the draft", domain.ErrNotFound, targetID)
		s.notifyError(op, err)
		return draft.Chunk{}, err
	}

	local, err := s.draft.InsertChunk(index+offset, draft.Chunk{Text: text, Author: draft.AuthorUser})
	if err != nil {
		s.notifyError(op, err)
		return draft.Chunk{}, err
	}

	snippet, err := call(ctx, &storySvc.InsertRequest{
		Story:    s.key.Story,
		TargetID: targetID,
		Content:  text,
		Kind:     story.KindUser,
		Branch:   s.key.Branch,
	})
	if err != nil {
		s.rollback(op, before, err)
		return draft.Chunk{}, err
	}
	return s.confirm(ctx, draft.ActionInsert, before, local, snippet), nil
}

// confirm swaps the placeholder id, records history and refreshes
func (s *Session) confirm(ctx context.Context, action draft.Action, before []draft.Chunk, local draft.Chunk, snippet *story.Snippet) draft.Chunk {
	if err := s.draft.ConfirmChunk(local.Tag, snippet.ID, snippet.CreatedAt); err != nil {
		s.logger.Warn("confirmed chunk vanished from draft", "snippet_id", snippet.ID, "error", err)
	}
	s.draft.PushHistory(action, before, s.draft.Chunks())

	confirmed := local
	confirmed.ID = snippet.ID
	confirmed.Timestamp = snippet.CreatedAt

	s.invalidate(ctx)
	return confirmed
}

// Delete removes a chunk. When it is the branch head the branch is first
// moved to the previous chunk so it never points at a deleted snippet.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	before := s.draft.Chunks()
	index := s.draft.IndexOf(id)
	if index < 0 {
		err := fmt.Errorf("%w: chunk %s is not in the draft", domain.ErrNotFound, id)
		s.notifyError("delete", err)
		return err
	}
	isHead := index == len(before)-1

	if len(before) == 1 {
		if err := s.checkDeleteOnly(ctx, id); err != nil {
			s.notifyError("delete", err)
			return err
		}
	}

	if err := s.draft.DeleteChunk(id); err != nil {
		s.notifyError("delete", err)
		return err
	}

	if isHead && index > 0 {
		if _, err := s.api.MoveBranch(ctx, &storySvc.MoveBranchRequest{
			Story:  s.key.Story,
			Name:   s.key.Branch,
			HeadID: before[index-1].ID,
		}); err != nil {
			s.rollback("delete", before, err)
			return err
		}
	}

	if err := s.api.Delete(ctx, s.key.Story, id); err != nil {
		if isHead && index > 0 {
			// put the branch back where it was
			if _, moveErr := s.api.MoveBranch(context.WithoutCancel(ctx), &storySvc.MoveBranchRequest{
				Story: s.key.Story, Name: s.key.Branch, HeadID: id,
			}); moveErr != nil {
				s.logger.Warn("failed to restore branch head", "branch", s.key.Branch, "error", moveErr)
			}
		}
		s.rollback("delete", before, err)
		return err
	}

	s.draft.PushHistory(draft.ActionDelete, before, s.draft.Chunks())
	if len(before) > 1 {
		s.invalidate(ctx)
	}
	return nil
}

// checkDeleteOnly allows deleting the only chunk when the story ends with
// it. Main then reads as an empty story and the next append starts over.
// Any other branch, or a chunk with children, would leave the branch
// pointing at a deleted snippet.
func (s *Session) checkDeleteOnly(ctx context.Context, id string) error {
	if s.key.Branch != story.DefaultBranch {
		return fmt.Errorf("%w: %s is the only chunk of branch %s, delete the branch instead", domain.ErrValidation, id, s.key.Branch)
	}
	tree, err := s.api.GetTree(ctx, s.key.Story)
	if err != nil {
		return err
	}
	for _, entry := range tree {
		if entry.Parent.ID == id {
			return fmt.Errorf("%w: %s is the only chunk of main but has %d children", domain.ErrValidation, id, len(entry.Children))
		}
	}
	return nil
}

// Regenerate replaces targetID and everything after it with an ai
// alternative. The original stays in the tree as a sibling.
func (s *Session) Regenerate(ctx context.Context, targetID, instruction string) (draft.Chunk, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	before := s.draft.Chunks()
	index := s.draft.IndexOf(targetID)
	if index < 0 {
		err := fmt.Errorf("%w: chunk %s is not in the draft", domain.ErrNotFound, targetID)
		s.notifyError("regenerate", err)
		return draft.Chunk{}, err
	}

	snippet, err := s.api.Regenerate(ctx, &storySvc.RegenerateRequest{
		Story:       s.key.Story,
		TargetID:    targetID,
		Instruction: instruction,
		Model:       s.model,
		Params:      s.params,
		Context:     s.genCtx,
		Branch:      s.key.Branch,
	})
	if err != nil {
		s.rollback("regenerate", before, err)
		return draft.Chunk{}, err
	}

	chunk := draft.FromSnippet(*snippet)
	after := append(append([]draft.Chunk{}, before[:index]...), chunk)
	s.draft.SetChunks(after)
	s.draft.PushHistory(draft.ActionRegenerate, before, after)
	s.invalidate(ctx)
	return chunk, nil
}

// Generate asks for a continuation of the whole draft and appends it
func (s *Session) Generate(ctx context.Context, instruction string) (draft.Chunk, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	resp, err := s.api.Continue(ctx, &generation.ContinueRequest{
		DraftText:   draft.Text(s.draft.Chunks()),
		Instruction: instruction,
		Model:       s.model,
		Params:      s.params,
		Context:     s.genCtx,
		PreviewOnly: true,
	})
	if err != nil {
		s.notifyError("generate", err)
		return draft.Chunk{}, err
	}
	return s.appendLocked(ctx, resp.Continuation, draft.AuthorLLM, draft.ActionGenerate)
}

// ChooseActiveChild switches which child of parentID is active and loads
// the resulting branch path
func (s *Session) ChooseActiveChild(ctx context.Context, parentID, childID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.flushBeforeSwitch(ctx)
	before := s.draft.Chunks()

	if err := s.api.ChooseActiveChild(ctx, &storySvc.ChooseActiveChildRequest{
		Story:    s.key.Story,
		ParentID: parentID,
		ChildID:  childID,
		Branch:   s.key.Branch,
	}); err != nil {
		s.notifyError("choose_active_child", err)
		return err
	}

	return s.adopt(ctx, before)
}

// SwitchBranch flushes pending edits and cuts over to another branch
func (s *Session) SwitchBranch(ctx context.Context, branch string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if branch == "" {
		branch = story.DefaultBranch
	}
	s.flushBeforeSwitch(ctx)

	before := s.draft.Chunks()
	previous := s.key
	s.key = reconcile.Key{Story: previous.Story, Branch: branch}

	if _, err := s.engine.Sync(ctx, s.api, s.key); err != nil {
		s.key = previous
		s.notifyError("switch_branch", err)
		return err
	}
	s.draft.PushHistory(draft.ActionBranch, before, s.draft.Chunks())
	s.logger.Info("switched branch", "story", s.key.Story, "from", previous.Branch, "to", branch)
	return nil
}

// adopt replaces the draft with the branch path regardless of the policy;
// used after operations that change which path the branch shows
func (s *Session) adopt(ctx context.Context, before []draft.Chunk) error {
	result, err := s.api.GetPath(ctx, s.key.Story, s.key.Branch, "")
	if err != nil {
		s.notifyError("refresh", err)
		return err
	}
	after := draft.FromPath(result.Path)
	s.draft.SetChunks(after)
	s.engine.Apply(s.key, after)
	s.draft.PushHistory(draft.ActionBranch, before, after)
	return nil
}

func (s *Session) flushBeforeSwitch(ctx context.Context) {
	if err := s.queue.Flush(ctx, savequeue.FlushOptions{}); err != nil {
		s.logger.Warn("flush before switch failed", "error", err)
	}
}

// Branches lists the story's branches
func (s *Session) Branches(ctx context.Context) ([]story.Branch, error) {
	branches, err := s.api.ListBranches(ctx, s.Key().Story)
	if err != nil {
		s.notifyError("branches", err)
		return nil, err
	}
	return branches, nil
}

// Tree lists every parent with its children
func (s *Session) Tree(ctx context.Context) ([]story.TreeEntry, error) {
	tree, err := s.api.GetTree(ctx, s.Key().Story)
	if err != nil {
		s.notifyError("tree", err)
		return nil, err
	}
	return tree, nil
}

// CreateBranch names a new pointer at headID, or at the last chunk when empty
func (s *Session) CreateBranch(ctx context.Context, name, headID string) (*story.Branch, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if headID == "" {
		chunks := s.draft.Chunks()
		if len(chunks) == 0 {
			err := fmt.Errorf("%w: nothing to branch from", domain.ErrValidation)
			s.notifyError("create_branch", err)
			return nil, err
		}
		headID = chunks[len(chunks)-1].ID
	}

	branch, err := s.api.CreateBranch(ctx, &storySvc.CreateBranchRequest{
		Story:  s.key.Story,
		Name:   name,
		HeadID: headID,
	})
	if err != nil {
		s.notifyError("create_branch", err)
		return branch, err
	}
	s.notify(Notification{Level: LevelInfo, Op: "create_branch", Message: fmt.Sprintf("created branch %s", name)})
	return branch, nil
}

// MoveBranch points name at headID. Moving the branch being edited
// reloads its path.
func (s *Session) MoveBranch(ctx context.Context, name, headID string) (*story.Branch, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	current := name == s.key.Branch
	if current {
		s.flushBeforeSwitch(ctx)
	}
	before := s.draft.Chunks()

	branch, err := s.api.MoveBranch(ctx, &storySvc.MoveBranchRequest{
		Story:  s.key.Story,
		Name:   name,
		HeadID: headID,
	})
	if err != nil {
		s.notifyError("move_branch", err)
		return nil, err
	}
	if current {
		if err := s.adopt(ctx, before); err != nil {
			return branch, err
		}
	}
	return branch, nil
}

// DeleteBranch removes a branch pointer other than the one being edited
func (s *Session) DeleteBranch(ctx context.Context, name string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if name == s.key.Branch {
		err := fmt.Errorf("%w: cannot delete the branch being edited", domain.ErrValidation)
		s.notifyError("delete_branch", err)
		return err
	}
	if err := s.api.DeleteBranch(ctx, s.key.Story, name); err != nil {
		s.notifyError("delete_branch", err)
		return err
	}
	return nil
}

// Undo restores the draft to the state before the newest history entry.
// It is local only; nothing is sent to the service.
func (s *Session) Undo() (draft.HistoryEntry, bool) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.draft.RevertFromHistory()
}

// Flush writes pending edits now
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx, savequeue.FlushOptions{})
}

// Close delivers pending edits on the keepalive path and waits for
// beacons until ctx ends
func (s *Session) Close(ctx context.Context) error {
	s.queue.Cancel()
	err := s.queue.Flush(ctx, savequeue.FlushOptions{Keepalive: true})

	if drainer, ok := s.api.(beaconDrainer); ok {
		if drainErr := drainer.DrainBeacons(ctx); drainErr != nil {
			err = errors.Join(err, fmt.Errorf("drain beacons: %w", drainErr))
		}
	}
	return err
}

func (s *Session) rollback(op string, before []draft.Chunk, err error) {
	s.draft.SetChunks(before)
	s.notifyError(op, err)
}
