package command

import (
	"context"

	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
)

type followCmd struct{ base }

func newFollowCmd() Command {
	return &followCmd{base{
		name:    "follow",
		aliases: []string{"따라가"},
		usage:   "follow <user>",
	}}
}

func (c *followCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if len(args) != 1 {
		return Fail(usageErr(c))
	}
	if err := eng.Follow(sess, args[0]); err != nil {
		return Fail(err)
	}
	return OK(
		eng.Catalog().T(sess.LocaleCode(), "follow.started", args[0]),
		map[string]any{"target": args[0]},
	)
}

type unfollowCmd struct{ base }

func newUnfollowCmd() Command {
	return &unfollowCmd{base{
		name:  "unfollow",
		usage: "unfollow",
	}}
}

func (c *unfollowCmd) Execute(ctx context.Context, sess *net.Session, eng Engine, args []string) Result {
	if _, err := player(sess); err != nil {
		return Fail(err)
	}
	if !eng.Unfollow(sess) {
		return Fail(mud.E(mud.State, "not_following", "you are not following anyone"))
	}
	return OK(eng.Catalog().T(sess.LocaleCode(), "follow.stopped"), nil)
}
