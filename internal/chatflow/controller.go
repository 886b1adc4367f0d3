// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/threadchat/internal/api"
	"github.com/jeranaias/threadchat/internal/history"
	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/model"
	"github.com/jeranaias/threadchat/internal/session"
	"github.com/jeranaias/threadchat/internal/threads"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned for blank submissions. No request is made.
	ErrEmptyInput = errors.New("message is empty")

	// ErrBusy is returned while a previous submission is still in flight.
	ErrBusy = errors.New("a message is already being sent")

	// ErrUnknownThread is returned when selecting an id the registry lacks.
	ErrUnknownThread = errors.New("unknown thread")

	// ErrEmptyTitle is returned by RenameThread for a blank title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrLoading is returned by BeginSubmit while the history of the
	// selected thread is still being fetched.
	ErrLoading = errors.New("messages are still loading")
)

// SendFailedToast is shown when the chatbot call fails.
const SendFailedToast = "Failed to get a response. Please try again."

// =============================================================================
// CONTROLLER
// =============================================================================

// Backend is the remote API the controller drives. *api.Client implements it.
type Backend interface {
	threads.Remote
	history.HistoryFetcher
	DeleteThread(ctx context.Context, id string) (string, error)
	SendMessage(ctx context.Context, content, threadID string) (*api.ChatReply, error)
}

// Controller owns the thread registry and the message log of the visible
// thread and applies the chat rules to them.
//
// All state is guarded by one mutex that is never held across a network
// call: every operation reads what it needs, releases the lock for the
// request, and re-acquires it to apply the result. Operations that the UI
// runs in the background come in Begin/Complete pairs so the first half can
// run on the event loop.
type Controller struct {
	mu sync.Mutex

	backend  Backend
	session  *session.Store
	registry *threads.Registry
	log      *history.Log
	source   history.Source
	cache    *history.CacheSource

	// titled records threads whose title was set in this process or that
	// already had user messages when loaded.
	titled map[string]bool
	// unknown records threads whose history failed to load. Their first
	// message in this process is not known to be the first one overall.
	unknown    map[string]bool
	submitting bool

	now    func() time.Time
	logger *slog.Logger
}

// New creates a controller. A non-nil cache selects local history: message
// logs are read from and written through to the cache instead of the
// chat-history endpoint. sess may be nil when no session should be cleared
// on expiry.
func New(backend Backend, sess *session.Store, cache *history.CacheSource) *Controller {
	c := &Controller{
		backend:  backend,
		session:  sess,
		registry: threads.New(backend),
		titled:   make(map[string]bool),
		unknown:  make(map[string]bool),
		now:      time.Now,
		logger:   logging.Component("chatflow"),
	}
	if cache != nil {
		c.cache = cache
		c.source = cache
		c.log = history.NewLocal(cache)
	} else {
		c.source = history.NewRemoteSource(backend)
		c.log = history.New()
	}
	return c
}

// Local reports whether messages come from the local cache.
func (c *Controller) Local() bool {
	return c.cache != nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// View is a consistent copy of the controller state for rendering.
type View struct {
	Threads        []*model.Thread
	Selected       string
	ThreadsVersion uint64
	ThreadsLoaded  bool
	LogThread      string
	Messages       []model.Message
	Loading        bool
	Submitting     bool
}

// SelectedThread returns the selected entry of the view, or nil.
func (v View) SelectedThread() *model.Thread {
	for _, t := range v.Threads {
		if t.ID == v.Selected {
			return t
		}
	}
	return nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Threads:        c.registry.Threads(),
		Selected:       c.registry.Selected(),
		ThreadsVersion: c.registry.Version(),
		ThreadsLoaded:  c.registry.Loaded(),
		LogThread:      c.log.ThreadID(),
		Messages:       c.log.Messages(),
		Loading:        c.log.Loading(),
		Submitting:     c.submitting,
	}
}

// Submitting reports whether a submission is in flight.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Reset drops all state. Called when the session ends.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.registry.Reset()
	c.log.Reset()
	c.titled = make(map[string]bool)
	c.unknown = make(map[string]bool)
	c.submitting = false
}

// expire ends the session when err says the token is no longer valid. It
// must be called without c.mu held.
func (c *Controller) expire(err error) bool {
	if !errors.Is(err, api.ErrUnauthorized) {
		return false
	}
	c.logger.Info("session expired", "error", err)
	c.Reset()
	if c.session != nil {
		if cerr := c.session.Logout(); cerr != nil {
			c.logger.Warn("failed to clear expired session", "error", cerr)
		}
	}
	return true
}

// =============================================================================
// THREAD LIST AND SELECTION
// =============================================================================

// Load is a pending history load returned by the Begin halves. Pass it to
// CompleteLoad.
type Load struct {
	ThreadID string
	gen      uint64
	fetch    bool
}

// NeedsFetch reports whether CompleteLoad will make a request.
func (ld Load) NeedsFetch() bool {
	return ld.fetch
}

func (c *Controller) beginLoadLocked(threadID string) Load {
	gen, fetch := c.log.Begin(threadID)
	if !fetch {
		c.touchLocked()
	}
	return Load{ThreadID: threadID, gen: gen, fetch: fetch}
}

// LoadThreads fetches the thread list. When nothing is selected the head
// becomes selected. A failed fetch leaves an empty list; the error is
// returned for logging only.
func (c *Controller) LoadThreads(ctx context.Context) (Load, error) {
	list, err := c.backend.ListThreads(ctx)
	if c.expire(err) {
		return Load{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.registry.Replace(list, err)
	if c.registry.Selected() == "" && c.registry.Len() > 0 {
		c.registry.Select(c.registry.Threads()[0].ID)
	}
	return c.beginLoadLocked(c.registry.Selected()), err
}

// BeginSelect makes id the selected thread and starts its history load.
func (c *Controller) BeginSelect(id string) (Load, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registry.Select(id) {
		return Load{}, ErrUnknownThread
	}
	return c.beginLoadLocked(id), nil
}

// CompleteLoad fetches the history started by a Begin call. Results for a
// thread the user has already left are discarded. A fetch error clears the
// log and is returned for logging only.
func (c *Controller) CompleteLoad(ctx context.Context, ld Load) error {
	if !ld.fetch {
		return nil
	}
	msgs, err := c.source.Fetch(ctx, ld.ThreadID)
	if c.expire(err) {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.log.Apply(ld.gen, msgs, err) {
		return err
	}
	if err != nil {
		c.unknown[ld.ThreadID] = true
		return err
	}
	delete(c.unknown, ld.ThreadID)
	if c.log.UserCount() > 0 {
		c.titled[ld.ThreadID] = true
	}
	c.touchLocked()
	return nil
}

// SelectThread selects id and loads its history.
func (c *Controller) SelectThread(ctx context.Context, id string) error {
	ld, err := c.BeginSelect(id)
	if err != nil {
		return err
	}
	return c.CompleteLoad(ctx, ld)
}

// Neighbor returns the thread id offset positions from the selection.
func (c *Controller) Neighbor(offset int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Neighbor(offset)
}

// EnsureThread creates and selects a default thread when the list is
// empty, so an authenticated user always has a conversation to type into.
// Call it only after LoadThreads succeeded; a failed list says nothing
// about what the backend holds. The returned Load is zero when nothing
// was created.
func (c *Controller) EnsureThread(ctx context.Context) (Load, error) {
	c.mu.Lock()
	empty := c.registry.Len() == 0
	c.mu.Unlock()
	if !empty {
		return Load{}, nil
	}
	t, err := c.NewThread(ctx, "")
	if err != nil {
		return Load{}, err
	}
	return Load{ThreadID: t.ID}, nil
}

// =============================================================================
// THREAD MUTATIONS
// =============================================================================

// NewThread creates a thread on the backend, puts it at the head and
// selects it. An empty title uses the default; an explicit one is kept
// when the first message is sent.
func (c *Controller) NewThread(ctx context.Context, title string) (*model.Thread, error) {
	title = strings.TrimSpace(title)
	explicit := title != "" && title != model.DefaultThreadTitle
	if title == "" {
		title = model.DefaultThreadTitle
	}
	t, err := c.backend.CreateThread(ctx, title)
	if err != nil {
		c.logger.Warn("failed to create thread", "error", err)
		c.expire(err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.Insert(t)
	c.registry.Select(t.ID)
	if explicit {
		c.titled[t.ID] = true
	}
	// A new thread has nothing stored yet.
	gen, _ := c.log.Begin(t.ID)
	c.log.Apply(gen, nil, nil)
	return t, nil
}

// RenameThread sets the title of id. Failures are logged and returned but
// leave local state untouched; there is no retry.
func (c *Controller) RenameThread(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return c.rename(ctx, id, title, true)
}

func (c *Controller) rename(ctx context.Context, id, title string, explicit bool) error {
	if _, err := c.backend.UpdateThread(ctx, id, title); err != nil {
		c.logger.Info("rename failed", "thread", id, "error", err)
		c.expire(err)
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry.SetTitle(id, title)
	if explicit {
		c.titled[id] = true
	}
	return nil
}

// DeleteThread removes id. When it was selected the new head is selected
// and its history load is returned. Deleting the last thread creates a
// fresh one so the list is never empty.
func (c *Controller) DeleteThread(ctx context.Context, id string) (Load, error) {
	if _, err := c.backend.DeleteThread(ctx, id); err != nil {
		c.logger.Warn("failed to delete thread", "thread", id, "error", err)
		c.expire(err)
		return Load{}, err
	}

	c.mu.Lock()
	sel := c.registry.Drop(id)
	delete(c.titled, id)
	delete(c.unknown, id)
	if c.cache != nil {
		if err := c.cache.Delete(id); err != nil {
			c.logger.Warn("failed to drop message cache", "thread", id, "error", err)
		}
	}
	if sel != "" {
		ld := c.beginLoadLocked(sel)
		c.mu.Unlock()
		return ld, nil
	}
	c.mu.Unlock()

	t, err := c.NewThread(ctx, "")
	if err != nil {
		return Load{}, err
	}
	return Load{ThreadID: t.ID}, nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Pending is a submission accepted by BeginSubmit. Pass it to
// CompleteSubmit exactly once.
type Pending struct {
	// ThreadID is the thread the message was sent from, "" when the
	// backend should create one.
	ThreadID string
	Message  model.Message

	gen        uint64
	firstUser  bool
	titleOnAck string
	rename     string
}

// Outcome describes how a submission ended.
type Outcome struct {
	// ThreadID is the thread the reply belongs to. It differs from
	// Pending.ThreadID when the backend created the thread.
	ThreadID string
	Created  bool
	Reply    *model.Message
	// Visible is false when the user switched threads before the reply
	// arrived; the reply was then not added to the visible log.
	Visible bool
	// Toast is the user-facing failure text, "" on success.
	Toast string
	Err   error
}

// BeginSubmit validates input, appends the optimistic user message and
// takes the submission latch. The latch is released by CompleteSubmit.
func (c *Controller) BeginSubmit(input string) (*Pending, error) {
	content := strings.TrimSpace(input)
	if content == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return nil, ErrBusy
	}
	if c.log.Loading() {
		return nil, ErrLoading
	}
	c.submitting = true

	threadID := c.log.ThreadID()
	before := c.log.UserCount()
	msg := model.NewMessage(model.RoleUser, content, c.now())
	c.log.Append(msg)

	p := &Pending{
		ThreadID:  threadID,
		Message:   msg,
		gen:       c.log.Generation(),
		firstUser: before == 0,
	}
	if threadID == "" {
		if p.firstUser {
			p.titleOnAck = model.DeriveTitle(content)
		}
	} else {
		p.rename = c.deriveTitleLocked(threadID, before)
		c.touchLocked()
	}
	return p, nil
}

// CompleteSubmit sends the pending message and applies the reply. It always
// releases the latch. A send failure keeps the optimistic message and
// reports SendFailedToast.
func (c *Controller) CompleteSubmit(ctx context.Context, p *Pending) Outcome {
	if p.rename != "" {
		_ = c.rename(ctx, p.ThreadID, p.rename, false)
	}

	reply, err := c.backend.SendMessage(ctx, p.Message.Content, p.ThreadID)
	if err != nil {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
		c.logger.Warn("send failed", "thread", p.ThreadID, "error", err)
		c.expire(err)
		return Outcome{ThreadID: p.ThreadID, Toast: SendFailedToast, Err: err}
	}

	c.mu.Lock()
	c.submitting = false
	out := Outcome{ThreadID: p.ThreadID}
	if p.ThreadID == "" && reply.ThreadID != "" {
		out.ThreadID = reply.ThreadID.String()
		out.Created = true
	}
	visible := c.log.Generation() == p.gen && c.log.ThreadID() == p.ThreadID
	msg := model.NewMessage(model.RoleAssistant, reply.Response, c.now())
	out.Reply = &msg

	var rename string
	if out.Created {
		c.adoptLocked(out.ThreadID, visible)
		if p.titleOnAck != "" && !c.titled[out.ThreadID] {
			c.titled[out.ThreadID] = true
			rename = p.titleOnAck
		}
	}

	switch {
	case visible:
		c.log.Append(msg)
		c.touchLocked()
		out.Visible = true
	case out.ThreadID != "":
		if out.Created && c.cache != nil {
			// The optimistic message never reached a cache entry.
			if err := c.cache.Append(ctx, out.ThreadID, p.Message); err != nil {
				c.logger.Warn("failed to cache message", "thread", out.ThreadID, "error", err)
			}
		}
		c.storeLateReplyLocked(ctx, out.ThreadID, msg)
	}
	c.mu.Unlock()

	if rename != "" {
		_ = c.rename(ctx, out.ThreadID, rename, false)
	}
	return out
}

// Submit runs BeginSubmit and CompleteSubmit back to back.
func (c *Controller) Submit(ctx context.Context, input string) (Outcome, error) {
	p, err := c.BeginSubmit(input)
	if err != nil {
		return Outcome{}, err
	}
	out := c.CompleteSubmit(ctx, p)
	return out, out.Err
}

// adoptLocked registers a thread the backend created for a send.
func (c *Controller) adoptLocked(id string, visible bool) {
	if c.registry.Get(id) == nil {
		now := c.now().UTC()
		c.registry.Insert(&model.Thread{
			ID:        id,
			Title:     model.DefaultThreadTitle,
			CreatedAt: &now,
			UpdatedAt: &now,
		})
	}
	if visible {
		c.registry.Select(id)
		c.log.Bind(id)
	}
}

// storeLateReplyLocked handles a reply for a thread that is no longer
// shown. The remote history already has it; the local cache needs it
// written. Either way the preview follows.
func (c *Controller) storeLateReplyLocked(ctx context.Context, threadID string, msg model.Message) {
	c.logger.Debug("reply for hidden thread", "thread", threadID)
	if c.cache != nil {
		if err := c.cache.Append(ctx, threadID, msg); err != nil {
			c.logger.Warn("failed to cache late reply", "thread", threadID, "error", err)
		}
	}
	c.registry.TouchLastMessage(threadID, msg.Content)
}

// =============================================================================
// DERIVED UPDATES
// =============================================================================

// deriveTitleLocked returns the title to request when the log of threadID
// just went from zero to one user message and the thread has not been
// titled yet, or "".
func (c *Controller) deriveTitleLocked(threadID string, userBefore int) string {
	if userBefore != 0 || c.log.UserCount() != 1 || c.titled[threadID] {
		return ""
	}
	if c.unknown[threadID] {
		c.logger.Debug("history unknown, keeping title", "thread", threadID)
		return ""
	}
	c.titled[threadID] = true
	for _, m := range c.log.Messages() {
		if m.IsUser() {
			return model.DeriveTitle(m.Content)
		}
	}
	return ""
}

// touchLocked copies the newest message of the visible log into the
// thread's preview.
func (c *Controller) touchLocked() {
	id := c.log.ThreadID()
	if id == "" {
		return
	}
	if last, ok := c.log.Last(); ok {
		c.registry.TouchLastMessage(id, last.Content)
	}
}
