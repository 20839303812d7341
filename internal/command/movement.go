package command

import (
	"context"

	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/net"
)

type goCmd struct{ base }

func newGoCmd() Command {
	return &goCmd{base{
		name:    "go",
		aliases: []string{"move", "walk", "가"},
		usage:   "go <direction>",
	}}
}

func (c *goCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) != 1 {
		return Fail(usageErr(c))
	}
	dir, err := model.ParseDirection(args[0])
	if err != nil {
		return Fail(err)
	}
	if err := eng.Walk(ctx, sess, dir); err != nil {
		return Fail(err)
	}
	return Silent()
}
