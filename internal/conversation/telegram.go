package conversation

import (
	"context"

	"github.com/m3rciful/instarepost/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/instarepost/core/telegram/helpers"
	"github.com/m3rciful/instarepost/core/telegram/keyboard"
	"github.com/m3rciful/instarepost/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Callback unique keys; the payload is the post id.
const (
	CallbackKeep    = "post_keep"
	CallbackConfirm = "post_confirm"
	CallbackEdit    = "post_edit"
	CallbackCancel  = "post_cancel"
)

func markupFor(r Reply) *tele.ReplyMarkup {
	switch r.Markup {
	case MarkupCaption:
		return keyboard.InlineColumn(
			keyboard.InlineBtn{Text: "Keep original caption", Unique: CallbackKeep, Data: r.PostID},
			keyboard.InlineBtn{Text: "Cancel", Unique: CallbackCancel, Data: r.PostID},
		)
	case MarkupPreview:
		return keyboard.InlineRows(
			[]keyboard.InlineBtn{
				{Text: "✅ Confirm", Unique: CallbackConfirm, Data: r.PostID},
				{Text: "✏️ Edit caption", Unique: CallbackEdit, Data: r.PostID},
			},
			[]keyboard.InlineBtn{{Text: "Cancel", Unique: CallbackCancel, Data: r.PostID}},
		)
	default:
		return nil
	}
}

func inputFrom(c tele.Context) Input {
	in := Input{Text: c.Text()}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	if u := c.Sender(); u != nil {
		in.UserID = u.ID
		in.Username = u.Username
	}
	return in
}

func send(c tele.Context, r Reply) error {
	if r.Text == "" {
		return nil
	}
	var markup []*tele.ReplyMarkup
	if m := markupFor(r); m != nil {
		markup = append(markup, m)
	}
	if r.MarkdownV2 {
		return tghelpers.SendMDV2(c, r.Text, markup...)
	}
	return tghelpers.SendText(c, r.Text, markup...)
}

type step func(ctx context.Context, in Input) Reply

func (f *Flow) message(fn step) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat() == nil {
			return nil
		}
		return send(c, fn(tghelpers.BuildContext(c), inputFrom(c)))
	}
}

type buttonStep func(ctx context.Context, in Input, postID string) Reply

// button answers stale presses with a notice only. Accepted presses lose
// their keyboard before the step runs.
func (f *Flow) button(fn buttonStep, steps ...state.State) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat() == nil {
			return c.Respond()
		}
		in := inputFrom(c)
		postID := callbacks.Payload(c)
		if !f.Accepts(in.ChatID, postID, steps...) {
			return c.Respond(&tele.CallbackResponse{Text: msgStale})
		}
		_ = c.Respond()
		tghelpers.ClearMarkup(c)

		r := fn(tghelpers.WithPost(c, postID), in, postID)
		if r.Text == "" && r.Notice != "" {
			return tghelpers.SendText(c, r.Notice)
		}
		return send(c, r)
	}
}

// OnStart handles /start.
func (f *Flow) OnStart(c tele.Context) error { return f.message(f.Start)(c) }

// OnNew handles /new.
func (f *Flow) OnNew(c tele.Context) error { return f.message(f.NewPost)(c) }

// OnCancel handles /cancel.
func (f *Flow) OnCancel(c tele.Context) error {
	return f.message(func(ctx context.Context, in Input) Reply { return f.Cancel(ctx, in, "") })(c)
}

// OnText handles text in every step.
func (f *Flow) OnText(c tele.Context) error {
	if chat := c.Chat(); chat != nil && f.Step(chat.ID) != StepAwaitingCaption {
		_ = c.Notify(tele.Typing)
	}
	return f.message(f.HandleText)(c)
}

// OnUnexpected re-prompts for the current step's input.
func (f *Flow) OnUnexpected(c tele.Context) error { return f.message(f.Unexpected)(c) }

// OnKeep handles the Keep original caption button.
func (f *Flow) OnKeep(c tele.Context) error {
	return f.button(f.KeepOriginal, StepAwaitingCaption)(c)
}

// OnConfirm handles the Confirm button.
func (f *Flow) OnConfirm(c tele.Context) error {
	_ = c.Notify(tele.UploadingPhoto)
	return f.button(f.Confirm, StepReadyToPost)(c)
}

// OnEdit handles the Edit caption button.
func (f *Flow) OnEdit(c tele.Context) error {
	return f.button(f.EditCaption, StepReadyToPost)(c)
}

// OnCancelButton handles the Cancel button.
func (f *Flow) OnCancelButton(c tele.Context) error {
	return f.button(f.Cancel, StepAwaitingCaption, StepReadyToPost)(c)
}

// Callbacks maps callback keys to handlers for registry registration.
func (f *Flow) Callbacks() map[string]tele.HandlerFunc {
	return map[string]tele.HandlerFunc{
		CallbackKeep:    f.OnKeep,
		CallbackConfirm: f.OnConfirm,
		CallbackEdit:    f.OnEdit,
		CallbackCancel:  f.OnCancelButton,
	}
}

// Bind registers the text handler for every non-idle step on states.
func (f *Flow) Bind(states state.Manager) {
	for _, st := range []state.State{StepAwaitingURL, StepAwaitingCaption, StepReadyToPost} {
		states.RegisterHandler(st, f.OnText)
	}
}
