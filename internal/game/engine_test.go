package game

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskmud/server/internal/config"
	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/data"
	"github.com/duskmud/server/internal/locale"
	"github.com/duskmud/server/internal/model"
	mudnet "github.com/duskmud/server/internal/net"
	"github.com/duskmud/server/internal/persist"
	"github.com/duskmud/server/internal/scripting"
	"github.com/duskmud/server/internal/world"
)

func testCatalog(t *testing.T) *locale.Catalog {
	t.Helper()
	cat, err := locale.New(map[string]map[string]string{
		"en": {
			"auth.greeting":        "Welcome to DuskMUD. Press enter to continue.",
			"auth.menu":            "1) login  2) register  3) quit",
			"auth.user_prompt":     "Username:",
			"auth.pass_prompt":     "Password:",
			"auth.bye":             "Goodbye.",
			"auth.too_many":        "Too many failed attempts.",
			"welcome":              "Welcome, {0}!",
			"follow.started":       "You follow {0}.",
			"follow.stopped":       "You stop following.",
			"world.player_arrives": "{0} arrives.",
			"world.player_leaves":  "{0} leaves.",
			"combat.your_turn":     "Your turn.",
			"room.exits":           "Exits: {0}",
			"room.no_exits":        "There are no obvious exits.",
			"item.taken":           "You pick up the {0}.",
			"item.dropped":         "You drop the {0}.",
			"inventory.count":      "You are carrying {0} item(s).",
			"inventory.empty":      "You are carrying nothing.",
			"shop.greeting":        "{0} says: welcome, traveler. Everything has a price.",
			"shop.listing":         "{0} offers {1} item(s).",
			"shop.bought":          "You buy the {0} for {1} gold.",
			"shop.sold":            "You sell the {0} for {1} gold.",
			"chat.tell_sent":       "You whisper to {0}.",
			"stats.self":           "{0}, level {1}",
			"who.count":            "{0} adventurer(s) walk the realm.",
			"help.intro":           "{0} commands available. 'help <command>' shows usage.",
			"mode.set":             "Output mode set to {0}.",
			"locale.set":           "Language set to {0}.",
			"admin.room_created":   "Room {0} created.",
			"admin.room_updated":   "Room {0} updated.",
			"admin.exit_created":   "Exit added: {0} goes {1} to {2}.",
			"admin.object_created": "Spawned {0} in {1}.",
		},
		"ko": {
			"locale.set": "언어가 {0}(으)로 설정되었습니다.",
		},
	})
	require.NoError(t, err)
	return cat
}

// testEngine wires a full engine over in-memory stores: a small town with
// a weak aggressive rat in the lair plus an exit-less vault, no database,
// no scheduler.
func testEngine(t *testing.T) (*Engine, *persist.Stores) {
	t.Helper()

	stores := persist.NewMemStores()
	monsters := data.NewMonsterTable([]data.MonsterTemplate{
		{
			ID:         "rat",
			Name:       model.Loc("giant rat", "큰 쥐"),
			Stats:      model.StatBlock{HP: 3, MaxHP: 3, Attack: 1, Speed: 50},
			Type:       model.Aggressive,
			Behavior:   model.Stationary,
			GoldReward: 5,
			ExpReward:  7,
			RespawnSec: 60,
		},
		{
			ID:        "shopkeeper",
			Name:      model.Loc("shopkeeper", "상인"),
			Stats:     model.StatBlock{HP: 50, MaxHP: 50},
			Type:      model.Neutral,
			Behavior:  model.Stationary,
			Merchant:  true,
			ShopItems: []string{"health_potion"},
		},
	})
	items := data.NewItemTable([]data.ItemTemplate{
		{
			ID:         "health_potion",
			Name:       model.Loc("potion", "물약"),
			ObjectType: "consumable",
			Weight:     1,
			Stackable:  true,
			MaxStack:   10,
			Properties: map[string]any{"price": 25, "heal": 20},
		},
	})
	bus := event.NewBus(zap.NewNop())
	w := world.NewManager(stores, bus, monsters, items, rand.New(rand.NewSource(1)), zap.NewNop())

	ctx := context.Background()
	rooms := []*model.Room{
		{
			ID:          "town_square",
			Name:        model.Loc("Town Square", "마을 광장"),
			Description: model.Loc("The center of town.", "마을의 중심."),
			Exits:       map[model.Direction]string{model.North: "plaza", model.East: "lair"},
		},
		{
			ID:          "plaza",
			Name:        model.Loc("Plaza", "광장"),
			Description: model.Loc("A quiet plaza.", "조용한 광장."),
			Exits:       map[model.Direction]string{model.South: "town_square"},
		},
		{
			ID:          "lair",
			Name:        model.Loc("Rat Lair", "쥐 소굴"),
			Description: model.Loc("A damp burrow.", "축축한 굴."),
			Exits:       map[model.Direction]string{model.West: "town_square"},
			SpawnPoints: []model.SpawnPoint{{RoomID: "lair", TemplateID: "rat", Count: 1, RespawnSec: 60}},
		},
		{
			ID:          "vault",
			Name:        model.Loc("Sealed Vault", "봉인된 금고"),
			Description: model.Loc("No door leads here.", "문이 없는 방."),
		},
	}
	for _, r := range rooms {
		_, err := w.CreateRoom(ctx, r)
		require.NoError(t, err)
	}
	_, err := w.SpawnAllRooms(ctx)
	require.NoError(t, err)

	scripts, err := scripting.NewEngine("", zap.NewNop())
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{
			SecretKey:     "test-secret",
			IdleTimeout:   time.Minute,
			ShutdownGrace: 50 * time.Millisecond,
			OutQueueSize:  64,
		},
		Game: config.GameConfig{
			DefaultLocale: "en",
			StartRoom:     "town_square",
			CombatTimeout: time.Minute,
		},
	}
	eng, err := NewEngine(Deps{
		Cfg:     cfg,
		Log:     zap.NewNop(),
		Stores:  *stores,
		Bus:     bus,
		World:   w,
		Catalog: testCatalog(t),
		Items:   items,
		Scripts: scripts,
		RNG:     rand.New(rand.NewSource(7)),
	})
	require.NoError(t, err)
	return eng, stores
}

// wireClient drives one connection end the way a real client would: raw
// text lines before login, JSON envelopes after.
type wireClient struct {
	t    *testing.T
	sess *mudnet.Session
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, eng *Engine) *wireClient {
	t.Helper()
	client, server := net.Pipe()
	sess := mudnet.NewSession(mudnet.NewTCPConn(server), "tcp", 64, 0, "en", zap.NewNop())
	sess.Start()
	go eng.runSession(context.Background(), sess)
	t.Cleanup(func() {
		sess.Close()
		client.Close()
	})
	return &wireClient{t: t, sess: sess, conn: client, r: bufio.NewReader(client)}
}

func (c *wireClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := fmt.Fprintf(c.conn, "%s\r\n", line)
	require.NoError(c.t, err)
}

func (c *wireClient) readLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	raw, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(raw, "\r\n")
}

func (c *wireClient) readEnvelope() map[string]any {
	c.t.Helper()
	line := c.readLine()
	var m map[string]any
	require.NoError(c.t, json.Unmarshal([]byte(line), &m), "expected a JSON envelope, got %q", line)
	return m
}

// readUntil skips envelopes until one of the wanted type arrives.
func (c *wireClient) readUntil(typ string) map[string]any {
	c.t.Helper()
	for i := 0; i < 32; i++ {
		m := c.readEnvelope()
		if m["type"] == typ {
			return m
		}
	}
	c.t.Fatalf("no %s envelope in 32 reads", typ)
	return nil
}

// register walks the menu to a fresh account and swallows the welcome
// and room envelopes.
func (c *wireClient) register(username, password string) {
	c.t.Helper()
	c.readLine() // greeting
	c.send("")
	c.readLine() // menu
	c.send("2")
	c.readLine() // username prompt
	c.send(username)
	c.readLine() // password prompt
	c.send(password)
	env := c.readUntil("action_result")
	require.Equal(c.t, "success", env["status"])
	c.readUntil("room_info")
}

// login walks the menu into an existing account the same way.
func (c *wireClient) login(username, password string) {
	c.t.Helper()
	c.readLine() // greeting
	c.send("")
	c.readLine() // menu
	c.send("1")
	c.readLine() // username prompt
	c.send(username)
	c.readLine() // password prompt
	c.send(password)
	env := c.readUntil("action_result")
	require.Equal(c.t, "success", env["status"])
	c.readUntil("room_info")
}

func payload(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	if data, ok := env["data"].(map[string]any); ok {
		return data
	}
	// older servers put action/message at the top level
	if _, ok := env["action"]; ok {
		return env
	}
	require.Failf(t, "bad envelope", "no data payload: %v", env)
	return nil
}

func seedPlayer(t *testing.T, eng *Engine, stores *persist.Stores, username, password string) *model.Player {
	t.Helper()
	hash, err := hashPassword(eng.cfg.Server.SecretKey, password)
	require.NoError(t, err)
	now := time.Now().UTC()
	p := &model.Player{
		Username:        username,
		PasswordHash:    hash,
		PreferredLocale: "en",
		CreatedAt:       now,
		LastLogin:       now.Add(-time.Hour),
		CurrentRoomID:   "town_square",
		Stats: model.StatBlock{
			Str: 10, Dex: 10, Con: 10,
			Int: 10, Wis: 10, Cha: 10,
		},
		Gold:  100,
		Level: 1,
	}
	p.DeriveStats()
	created, err := stores.Players.Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

func TestRegisterAttachesAndPersists(t *testing.T) {
	eng, stores := testEngine(t)
	c := dial(t, eng)

	assert.Equal(t, "Welcome to DuskMUD. Press enter to continue.", c.readLine())
	c.send("")
	assert.Equal(t, "1) login  2) register  3) quit", c.readLine())
	c.send("2")
	assert.Equal(t, "Username:", c.readLine())
	c.send("alice")
	assert.Equal(t, "Password:", c.readLine())
	c.send("hunter22")

	env := c.readUntil("action_result")
	assert.Equal(t, "success", env["status"])
	pl := payload(t, env)
	assert.Equal(t, "register_success", pl["action"])
	assert.Equal(t, "Welcome, alice!", pl["message"])
	inner, ok := pl["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "town_square", inner["room_id"])
	assert.EqualValues(t, 1, inner["level"])

	room := c.readUntil("room_info")
	assert.Equal(t, "town_square", room["room_id"])
	assert.Equal(t, "Town Square", room["name"])
	assert.ElementsMatch(t, []any{"north", "east"}, room["exits"])
	assert.Empty(t, room["players"])

	p, err := stores.Players.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 100, p.Gold)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, "town_square", p.CurrentRoomID)
	assert.Equal(t, 66, p.Stats.MaxHP, "derived from con 10 at level 1")
	assert.Equal(t, p.Stats.MaxHP, p.Stats.HP)
	assert.True(t, checkPassword(eng.cfg.Server.SecretKey, p.PasswordHash, "hunter22"))
	assert.False(t, checkPassword(eng.cfg.Server.SecretKey, p.PasswordHash, "hunter23"))

	roomID, placed := eng.World().PlayerRoom(p.ID)
	require.True(t, placed)
	assert.Equal(t, "town_square", roomID)
	assert.Equal(t, 1, eng.SessionCount())

	sess, online := eng.FindSession("alice")
	require.True(t, online)
	assert.Equal(t, "alice", sess.Username())
}

func TestLoginUniformFailureMessage(t *testing.T) {
	eng, stores := testEngine(t)
	seeded := seedPlayer(t, eng, stores, "alice", "hunter22")
	c := dial(t, eng)

	c.readLine() // greeting
	c.send("")
	c.readLine() // menu

	attempt := func(user, pass string) string {
		c.send("1")
		c.readLine() // username prompt
		c.send(user)
		c.readLine() // password prompt
		c.send(pass)
		return c.readLine()
	}

	unknownUser := attempt("ghost", "whatever")
	c.readLine() // menu
	wrongPass := attempt("alice", "whatever")
	c.readLine() // menu
	assert.Equal(t, unknownUser, wrongPass, "unknown users and wrong passwords must be indistinguishable")

	line := attempt("alice", "hunter22")
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &env))
	assert.Equal(t, "action_result", env["type"])
	assert.Equal(t, "login_success", payload(t, env)["action"])

	p, err := stores.Players.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, p.LastLogin.After(seeded.LastLogin), "login must refresh last_login")
}

func TestLoginLockoutNotice(t *testing.T) {
	eng, stores := testEngine(t)
	seedPlayer(t, eng, stores, "alice", "hunter22")
	c := dial(t, eng)

	c.readLine() // greeting
	c.send("")
	c.readLine() // menu

	for i := 0; i < 3; i++ {
		c.send("1")
		c.readLine() // username prompt
		c.send("alice")
		c.readLine() // password prompt
		c.send("nope")
		c.readLine() // failure text
		if i == 2 {
			assert.Equal(t, "Too many failed attempts.", c.readLine())
		}
		c.readLine() // menu
	}
}

func TestLoginRejectsSecondSession(t *testing.T) {
	eng, _ := testEngine(t)
	first := dial(t, eng)
	first.register("alice", "hunter22")

	second := dial(t, eng)
	second.readLine() // greeting
	second.send("")
	second.readLine() // menu
	second.send("1")
	second.readLine() // username prompt
	second.send("alice")
	second.readLine() // password prompt
	second.send("hunter22")

	assert.Contains(t, second.readLine(), "already connected")
	assert.Equal(t, 2, eng.SessionCount(), "the rejected session stays at the menu")
}

func TestQuitFromMenu(t *testing.T) {
	eng, _ := testEngine(t)
	c := dial(t, eng)

	c.readLine() // greeting
	c.send("")
	c.readLine() // menu
	c.send("3")
	assert.Equal(t, "Goodbye.", c.readLine())

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := c.r.ReadString('\n')
	assert.Error(t, err, "the server closes after the goodbye line")
	require.Eventually(t, func() bool { return eng.SessionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWalkSendsViewAndBroadcasts(t *testing.T) {
	eng, stores := testEngine(t)
	a := dial(t, eng)
	a.register("alice", "hunter22")
	b := dial(t, eng)
	b.register("bob", "hunter22")

	joined := a.readUntil("player_joined")
	assert.Equal(t, "bob", joined["username"])

	a.send("north")
	view := a.readUntil("room_info")
	assert.Equal(t, "plaza", view["room_id"])
	assert.Empty(t, view["players"])

	moved := b.readUntil("player_moved")
	assert.Equal(t, "alice", moved["username"])
	assert.Equal(t, "town_square", moved["from_room"])
	assert.Equal(t, "plaza", moved["to_room"])
	assert.Equal(t, "walk", moved["reason"])
	assert.Equal(t, "alice leaves.", moved["message"])

	p, err := stores.Players.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	roomID, placed := eng.World().PlayerRoom(p.ID)
	require.True(t, placed)
	assert.Equal(t, "plaza", roomID)

	// bare direction words dispatch as the go command
	a.send("s")
	back := a.readUntil("room_info")
	assert.Equal(t, "town_square", back["room_id"])
	assert.Equal(t, []any{"bob"}, back["players"])

	arrived := b.readUntil("player_moved")
	assert.Equal(t, "alice arrives.", arrived["message"])
}

func TestWalkRejectsMissingExit(t *testing.T) {
	eng, _ := testEngine(t)
	c := dial(t, eng)
	c.register("alice", "hunter22")

	c.send("west")
	env := c.readUntil("error")
	assert.Equal(t, "error", env["status"])
	assert.Equal(t, "no_such_exit", env["code"])
	assert.Contains(t, env["message"], "west")
}

func TestAdminGotoBypassesExits(t *testing.T) {
	eng, stores := testEngine(t)
	admin := seedPlayer(t, eng, stores, "keeper", "hunter22")
	admin.IsAdmin = true
	require.NoError(t, stores.Players.Update(context.Background(), admin))

	c := dial(t, eng)
	c.login("keeper", "hunter22")

	// no room has an exit into the vault; teleport does not care
	c.send("goto vault")
	view := c.readUntil("room_info")
	assert.Equal(t, "vault", view["room_id"])
	assert.Equal(t, "Sealed Vault", view["name"])
	assert.Empty(t, view["exits"])

	roomID, placed := eng.World().PlayerRoom(admin.ID)
	require.True(t, placed)
	assert.Equal(t, "vault", roomID)

	c.send("north")
	walkErr := c.readUntil("error")
	assert.Equal(t, "no_such_exit", walkErr["code"])
}

func TestSayReachesTheRoom(t *testing.T) {
	eng, _ := testEngine(t)
	a := dial(t, eng)
	a.register("alice", "hunter22")
	b := dial(t, eng)
	b.register("bob", "hunter22")

	b.send("say hello there")

	heardByA := a.readUntil("chat_message")
	assert.Equal(t, "bob", heardByA["from"])
	assert.Equal(t, "hello there", heardByA["message"])
	assert.Equal(t, "town_square", heardByA["room_id"])

	heardByB := b.readUntil("chat_message")
	assert.Equal(t, "hello there", heardByB["message"], "say echoes to the speaker too")
}

func TestFollowDragsAndReleases(t *testing.T) {
	eng, stores := testEngine(t)
	a := dial(t, eng)
	a.register("alice", "hunter22")
	b := dial(t, eng)
	b.register("bob", "hunter22")

	b.send("follow alice")
	ack := b.readUntil("action_result")
	pl := payload(t, ack)
	assert.Equal(t, "follow", pl["action"])
	assert.Equal(t, "You follow alice.", pl["message"])
	assert.Equal(t, a.sess.ID, b.sess.FollowTarget())

	a.send("north")
	dragged := b.readUntil("room_info")
	assert.Equal(t, "plaza", dragged["room_id"])

	bp, err := stores.Players.GetByUsername(context.Background(), "bob")
	require.NoError(t, err)
	roomID, placed := eng.World().PlayerRoom(bp.ID)
	require.True(t, placed)
	assert.Equal(t, "plaza", roomID)

	// the leader sees the follower arrive behind them
	arrival := a.readUntil("player_moved")
	assert.Equal(t, "bob", arrival["username"])
	assert.Equal(t, "follow", arrival["reason"])

	// leader disconnects; the follow is released with a notice
	require.NoError(t, a.conn.Close())
	note := b.readUntil("system_message")
	assert.Equal(t, "You stop following.", note["message"])
	require.Eventually(t, func() bool { return b.sess.FollowTarget() == "" },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return eng.SessionCount() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestAggroCombatToVictory(t *testing.T) {
	eng, stores := testEngine(t)
	c := dial(t, eng)
	c.register("alice", "hunter22")

	c.send("east")
	view := c.readUntil("room_info")
	assert.Equal(t, "lair", view["room_id"])
	mons, ok := view["monsters"].([]any)
	require.True(t, ok)
	require.Len(t, mons, 1)
	rat, ok := mons[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "giant rat", rat["name"])
	assert.Equal(t, "aggressive", rat["type"])
	assert.EqualValues(t, 3, rat["hp"])

	c.readUntil("monster_aggro")
	start := c.readUntil("combat_start")
	assert.Equal(t, "lair", start["room_id"])
	order, ok := start["turn_order"].([]any)
	require.True(t, ok)
	require.Len(t, order, 2)
	assert.True(t, strings.HasPrefix(order[0].(string), "m:"), "the rat's speed 50 acts first")

	// the rat's opening hit is floored at 1 against a defense of 15
	hit := c.readUntil("combat_message")
	assert.Equal(t, "attack", hit["action"])
	assert.EqualValues(t, 1, hit["damage"])
	assert.EqualValues(t, 65, hit["target_hp"])

	turn := c.readUntil("turn_start")
	assert.Equal(t, "Your turn.", turn["message"])

	// movement is locked while fighting
	c.send("west")
	blocked := c.readUntil("error")
	assert.Equal(t, "in_combat", blocked["code"])

	c.send("attack")

	// the result write-back sends stats before the end envelope goes out
	stats := c.readUntil("stats")
	assert.EqualValues(t, 65, stats["hp"])
	assert.EqualValues(t, 105, stats["gold"])
	assert.EqualValues(t, 7, stats["experience"])

	end := c.readUntil("combat_end")
	assert.Equal(t, "players", end["victor"])
	assert.EqualValues(t, 1, end["turns"])
	assert.EqualValues(t, 5, end["gold_earned"])
	assert.EqualValues(t, 7, end["exp_earned"])

	p, err := stores.Players.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 105, p.Gold)
	assert.Equal(t, 7, p.Experience)
	assert.Equal(t, 65, p.Stats.HP)

	// registry cleanup trails the end envelope by a hair
	require.Eventually(t, func() bool { return !eng.Combat().InCombat(p.ID) },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, eng.World().MonstersInRoom("lair"))
	assert.Equal(t, 1, eng.World().PendingRespawns())
}

func TestDetachPersistsPlayer(t *testing.T) {
	eng, stores := testEngine(t)
	c := dial(t, eng)
	c.register("alice", "hunter22")

	c.send("north")
	c.readUntil("room_info")

	p, err := stores.Players.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return eng.SessionCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	saved, err := stores.Players.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "plaza", saved.CurrentRoomID, "the final save captures the last room")

	_, placed := eng.World().PlayerRoom(p.ID)
	assert.False(t, placed)

	hist, ok := stores.History.(*persist.MemHistoryStore)
	require.True(t, ok)
	rec, found := hist.Record(c.sess.ID)
	require.True(t, found)
	assert.Equal(t, p.ID, rec.PlayerID)
	require.NotNil(t, rec.EndedAt, "detach closes the history row")
	assert.False(t, rec.EndedAt.Before(rec.StartedAt))
}

func TestKickDisconnects(t *testing.T) {
	eng, _ := testEngine(t)
	c := dial(t, eng)
	c.register("alice", "hunter22")

	assert.False(t, eng.Kick(context.Background(), "ghost", ""))
	require.True(t, eng.Kick(context.Background(), "alice", "rule violation"))

	note := c.readUntil("system_message")
	assert.Contains(t, note["message"], "rule violation")
	require.Eventually(t, func() bool { return eng.SessionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
