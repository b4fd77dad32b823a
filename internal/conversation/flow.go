// Package conversation drives a chat from link submission to repost:
//
//	idle -> awaiting_url -> awaiting_caption -> ready_to_post -> idle
//
// The Flow methods are transport-free; telegram.go adapts them to telebot.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/m3rciful/instarepost/core/logger"
	"github.com/m3rciful/instarepost/core/telegram/format"
	"github.com/m3rciful/instarepost/core/telegram/state"
	"github.com/m3rciful/instarepost/internal/instagram"
	"github.com/m3rciful/instarepost/internal/posts"
	"github.com/m3rciful/instarepost/internal/repost"
)

const (
	StepIdle            = state.StateIdle
	StepAwaitingURL     state.State = "awaiting_url"
	StepAwaitingCaption state.State = "awaiting_caption"
	StepReadyToPost     state.State = "ready_to_post"

	keyPostID = "post_id"
)

// Fetcher downloads a submitted link.
type Fetcher interface {
	Fetch(ctx context.Context, chatID, userID int64, rawURL string) (*posts.Record, error)
}

// Reposter publishes a post that is ready.
type Reposter interface {
	Confirm(ctx context.Context, id string) (*repost.Result, error)
}

// Records reads and updates post records.
type Records interface {
	Get(id string) (*posts.Record, error)
	Save(rec *posts.Record) error
}

// Discarder removes a post's files and record.
type Discarder interface {
	RemoveID(ctx context.Context, id string) error
}

// Options configures New.
type Options struct {
	States    state.Manager
	Fetcher   Fetcher
	Reposter  Reposter
	Records   Records
	Discarder Discarder
}

// Flow holds no per-chat data itself; sessions live in the state manager.
type Flow struct {
	states    state.Manager
	fetcher   Fetcher
	reposter  Reposter
	records   Records
	discarder Discarder

	// Steps of one chat run one at a time; other chats are not held up.
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	sync.Mutex
	refs int
}

// New validates opts.
func New(opts Options) (*Flow, error) {
	if opts.States == nil || opts.Fetcher == nil || opts.Reposter == nil || opts.Records == nil || opts.Discarder == nil {
		return nil, errors.New("conversation: all collaborators are required")
	}
	return &Flow{
		states:    opts.States,
		fetcher:   opts.Fetcher,
		reposter:  opts.Reposter,
		records:   opts.Records,
		discarder: opts.Discarder,
		locks:     make(map[int64]*chatLock),
	}, nil
}

// Input is one user message or button press.
type Input struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// Markup selects the inline keyboard attached to a reply.
type Markup int

const (
	MarkupNone Markup = iota
	// MarkupCaption offers Keep original caption and Cancel.
	MarkupCaption
	// MarkupPreview offers Confirm, Edit caption and Cancel.
	MarkupPreview
)

// Reply is what the bot answers. Notice is the short callback answer; Text
// is sent as a message when non-empty.
type Reply struct {
	Text       string
	MarkdownV2 bool
	Markup     Markup
	PostID     string
	Notice     string
}

// lock serialises steps for chatID. The entry is dropped once no step
// holds or waits on it.
func (f *Flow) lock(chatID int64) func() {
	f.mu.Lock()
	l, ok := f.locks[chatID]
	if !ok {
		l = &chatLock{}
		f.locks[chatID] = l
	}
	l.refs++
	f.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, chatID)
		}
		f.mu.Unlock()
	}
}

// Step returns the chat's current step.
func (f *Flow) Step(chatID int64) state.State {
	return f.states.GetState(chatID)
}

// CurrentPost returns the id of the chat's post in progress.
func (f *Flow) CurrentPost(chatID int64) (string, bool) {
	return f.states.GetTempString(chatID, keyPostID)
}

func (f *Flow) setStep(ctx context.Context, chatID int64, from, to state.State) {
	f.states.SetState(chatID, to)
	logStep(ctx, chatID, from, to)
}

func logStep(ctx context.Context, chatID int64, from, to state.State) {
	logger.Flow.LogAttrs(ctx, slog.LevelDebug, "step",
		slog.String("event", "conversation.step"),
		slog.Int64("chat_id", chatID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
}

// reset discards the chat's post in progress and returns it to idle.
func (f *Flow) reset(ctx context.Context, chatID int64) {
	if id, ok := f.CurrentPost(chatID); ok {
		_ = f.discarder.RemoveID(ctx, id)
	}
	from := f.states.GetState(chatID)
	f.states.Clear(chatID)
	if from != StepIdle {
		logStep(ctx, chatID, from, StepIdle)
	}
}

// Start resets the chat to idle and asks for a link.
func (f *Flow) Start(ctx context.Context, in Input) Reply {
	defer f.lock(in.ChatID)()
	f.reset(ctx, in.ChatID)
	return Reply{Text: welcomeText(in.Username)}
}

// NewPost discards any post in progress and waits for a link.
func (f *Flow) NewPost(ctx context.Context, in Input) Reply {
	defer f.lock(in.ChatID)()
	f.reset(ctx, in.ChatID)
	f.setStep(ctx, in.ChatID, StepIdle, StepAwaitingURL)
	return Reply{Text: msgAskURL}
}

// HandleText routes a text message by the chat's step.
func (f *Flow) HandleText(ctx context.Context, in Input) Reply {
	defer f.lock(in.ChatID)()
	switch step := f.Step(in.ChatID); step {
	case StepIdle, StepAwaitingURL:
		return f.submitURL(ctx, in, step)
	case StepAwaitingCaption:
		return f.submitCaption(ctx, in)
	default:
		return f.reprompt(in.ChatID)
	}
}

// Unexpected answers input the current step cannot use.
func (f *Flow) Unexpected(_ context.Context, in Input) Reply {
	return f.reprompt(in.ChatID)
}

func (f *Flow) reprompt(chatID int64) Reply {
	id, _ := f.CurrentPost(chatID)
	switch f.Step(chatID) {
	case StepAwaitingCaption:
		return Reply{Text: msgCaptionReprompt, Markup: MarkupCaption, PostID: id}
	case StepReadyToPost:
		return Reply{Text: msgPreviewReprompt, Markup: MarkupPreview, PostID: id}
	default:
		return Reply{Text: msgAskURL}
	}
}

func (f *Flow) submitURL(ctx context.Context, in Input, step state.State) Reply {
	if _, err := instagram.ParsePostURL(in.Text); err != nil {
		return Reply{Text: instagram.UserMessage(err)}
	}
	rec, err := f.fetcher.Fetch(ctx, in.ChatID, in.UserID, in.Text)
	if err != nil {
		// The step is left as is so the user can resend the link.
		return Reply{Text: instagram.UserMessage(err)}
	}
	f.states.SetTemp(in.ChatID, keyPostID, rec.ID)
	f.setStep(ctx, in.ChatID, step, StepAwaitingCaption)
	return Reply{Text: downloadedText(rec), Markup: MarkupCaption, PostID: rec.ID}
}

func (f *Flow) submitCaption(ctx context.Context, in Input) Reply {
	rec, reply, ok := f.current(ctx, in.ChatID)
	if !ok {
		return reply
	}
	rec.SetCaption(in.Text)
	return f.toPreview(ctx, in.ChatID, rec)
}

func (f *Flow) toPreview(ctx context.Context, chatID int64, rec *posts.Record) Reply {
	if err := f.records.Save(rec); err != nil {
		logger.Flow.LogAttrs(ctx, slog.LevelError, "caption not saved",
			slog.String("event", "conversation.caption"),
			slog.String("post_id", rec.ID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: msgInternal}
	}
	f.setStep(ctx, chatID, StepAwaitingCaption, StepReadyToPost)
	return Reply{Text: previewText(rec), MarkdownV2: true, Markup: MarkupPreview, PostID: rec.ID}
}

// current loads the chat's post; a vanished record resets the chat.
func (f *Flow) current(ctx context.Context, chatID int64) (*posts.Record, Reply, bool) {
	id, ok := f.CurrentPost(chatID)
	if !ok {
		f.states.Clear(chatID)
		return nil, Reply{Text: msgExpired}, false
	}
	rec, err := f.records.Get(id)
	if err != nil {
		if !errors.Is(err, posts.ErrNotFound) {
			logger.Flow.LogAttrs(ctx, slog.LevelError, "record unreadable",
				slog.String("event", "conversation.load"),
				slog.String("post_id", id),
				slog.String("err", err.Error()),
			)
		}
		f.reset(ctx, chatID)
		return nil, Reply{Text: msgExpired}, false
	}
	return rec, Reply{}, true
}

// Accepts reports whether a button for postID is valid in the chat's step.
func (f *Flow) Accepts(chatID int64, postID string, steps ...state.State) bool {
	current, ok := f.CurrentPost(chatID)
	if !ok || postID == "" || current != postID {
		return false
	}
	step := f.Step(chatID)
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

// KeepOriginal uses the original caption as the user's caption.
func (f *Flow) KeepOriginal(ctx context.Context, in Input, postID string) Reply {
	defer f.lock(in.ChatID)()
	if !f.Accepts(in.ChatID, postID, StepAwaitingCaption) {
		return Reply{Notice: msgStale}
	}
	rec, reply, ok := f.current(ctx, in.ChatID)
	if !ok {
		return reply
	}
	rec.SetCaption(rec.OriginalCaption)
	return f.toPreview(ctx, in.ChatID, rec)
}

// EditCaption returns a previewed post to caption entry.
func (f *Flow) EditCaption(ctx context.Context, in Input, postID string) Reply {
	defer f.lock(in.ChatID)()
	if !f.Accepts(in.ChatID, postID, StepReadyToPost) {
		return Reply{Notice: msgStale}
	}
	rec, reply, ok := f.current(ctx, in.ChatID)
	if !ok {
		return reply
	}
	f.setStep(ctx, in.ChatID, StepReadyToPost, StepAwaitingCaption)
	return Reply{Text: editText(rec), Markup: MarkupCaption, PostID: rec.ID}
}

// Confirm publishes the previewed post and returns the chat to idle.
// A failed publish keeps the preview so the user can press Confirm again.
func (f *Flow) Confirm(ctx context.Context, in Input, postID string) Reply {
	defer f.lock(in.ChatID)()
	if !f.Accepts(in.ChatID, postID, StepReadyToPost) {
		return Reply{Notice: msgStale}
	}
	res, err := f.reposter.Confirm(ctx, postID)
	switch {
	case err == nil:
	case errors.Is(err, repost.ErrInFlight):
		return Reply{Notice: msgInFlight}
	case errors.Is(err, posts.ErrNotFound):
		f.reset(ctx, in.ChatID)
		return Reply{Text: msgExpired}
	default:
		logger.Flow.LogAttrs(ctx, slog.LevelWarn, "repost failed",
			slog.String("event", "conversation.confirm"),
			slog.String("post_id", postID),
			slog.String("err", err.Error()),
		)
		return Reply{Text: msgRepostFailed, Markup: MarkupPreview, PostID: postID}
	}

	f.states.Clear(in.ChatID)
	logStep(ctx, in.ChatID, StepReadyToPost, StepIdle)
	return Reply{Text: postedText(res), Notice: msgPublished}
}

// Cancel discards the post in progress. A non-empty postID comes from a
// button and must match the chat's current post.
func (f *Flow) Cancel(ctx context.Context, in Input, postID string) Reply {
	defer f.lock(in.ChatID)()
	if postID != "" && !f.Accepts(in.ChatID, postID, StepAwaitingCaption, StepReadyToPost) {
		return Reply{Notice: msgStale}
	}
	if f.Step(in.ChatID) == StepIdle {
		return Reply{Text: msgNothingToCancel}
	}
	f.reset(ctx, in.ChatID)
	return Reply{Text: msgCancelled, Notice: "Cancelled"}
}

// Describe summarizes the chat's dialog for /status.
func (f *Flow) Describe(chatID int64) string {
	step := f.Step(chatID)
	id, ok := f.CurrentPost(chatID)
	if !ok {
		return fmt.Sprintf("Step: %s", stepLabel(step))
	}
	rec, err := f.records.Get(id)
	if err != nil {
		return fmt.Sprintf("Step: %s", stepLabel(step))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Step: %s\nPost: %s", stepLabel(step), rec.SourceURL)
	if rec.Author != "" {
		fmt.Fprintf(&b, " by @%s", rec.Author)
	}
	fmt.Fprintf(&b, "\nFiles: %d", len(rec.Media))
	return b.String()
}

func stepLabel(s state.State) string {
	switch s {
	case StepAwaitingURL:
		return "waiting for a link"
	case StepAwaitingCaption:
		return "waiting for a caption"
	case StepReadyToPost:
		return "waiting for confirmation"
	default:
		return "idle"
	}
}

func previewText(rec *posts.Record) string {
	var b strings.Builder
	b.WriteString("*Preview*\n\n")
	b.WriteString(format.EscapeV2(repost.Compose(rec)))
	b.WriteString("\n\n")
	b.WriteString(format.EscapeV2(fmt.Sprintf("%d %s will be reposted.", len(rec.Media), plural(len(rec.Media), "file", "files"))))
	return b.String()
}
