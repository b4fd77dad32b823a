package router

import (
	"log/slog"

	tg "github.com/m3rciful/instarepost/core/telegram"
	"github.com/m3rciful/instarepost/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute dispatches every inline button press through the registry.
// Unknown keys go to the registry's not-found handler.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.Key(c)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		cbHandler, ok := reg.GetCallback(key)
		if !ok {
			extras = append(extras, slog.String("cause", "not_found"))
			return handleWithSummary(c, name, func() error {
				if fb := reg.CallbackNotFound(); fb != nil {
					return fb(c)
				}
				return c.Respond()
			}, extras...)
		}
		return handleWithSummary(c, name, func() error {
			return cbHandler(c)
		}, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
