package command

import (
	"context"

	"github.com/duskmud/server/internal/net"
)

type modeCmd struct{ base }

func newModeCmd() Command {
	return &modeCmd{base{
		name:  "mode",
		usage: "mode [json|text]",
	}}
}

func (c *modeCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	current := "json"
	if sess.PlainText() {
		current = "text"
	}
	if len(args) == 0 {
		return OK(
			eng.Catalog().T(sess.LocaleCode(), "mode.current", current),
			map[string]any{"mode": current},
		)
	}
	switch args[0] {
	case "json":
		sess.SetPlainText(false)
	case "text":
		sess.SetPlainText(true)
	default:
		return Fail(usageErr(c))
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "mode.set", args[0]),
		map[string]any{"mode": args[0]},
	)
}

type localeCmd struct{ base }

func newLocaleCmd() Command {
	return &localeCmd{base{
		name:    "locale",
		aliases: []string{"lang", "언어"},
		usage:   "locale <code>",
	}}
}

func (c *localeCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) != 1 {
		return Fail(usageErr(c))
	}
	code, err := eng.SetLocale(ctx, sess, args[0])
	if err != nil {
		return Fail(err)
	}
	// confirm in the language just selected
	return OK(
		eng.Catalog().T(code, "locale.set", code),
		map[string]any{"locale": code},
	)
}

type quitCmd struct{ base }

func newQuitCmd() Command {
	return &quitCmd{base{
		name:    "quit",
		aliases: []string{"exit", "logout", "종료"},
		usage:   "quit",
	}}
}

func (c *quitCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	sess.Send(net.System(eng.Catalog().T(sess.LocaleCode(), "quit.bye")))
	eng.Quit(sess)
	return Silent()
}
