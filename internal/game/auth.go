package game

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/duskmud/server/internal/combat"
	"github.com/duskmud/server/internal/core/event"
	"github.com/duskmud/server/internal/model"
	"github.com/duskmud/server/internal/mud"
	"github.com/duskmud/server/internal/net"
)

// New accounts start as ordinary level-1 adventurers; admin accounts are
// flagged directly in storage.
const (
	startingStat = 10
	startingGold = 100
)

// pepper keyed-hashes the password with the server secret before bcrypt,
// keeping the bcrypt input at a fixed 44 bytes regardless of password
// length. Changing SECRET_KEY invalidates every stored hash.
func pepper(secret, password string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(password))
	sum := mac.Sum(nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum)
	return out
}

func hashPassword(secret, password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(pepper(secret, password), bcrypt.DefaultCost)
	if err != nil {
		return "", mud.Wrap(err, mud.Internal, "hash_failed", "could not hash password")
	}
	return string(h), nil
}

func checkPassword(secret, hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), pepper(secret, password)) == nil
}

// login verifies credentials and attaches the player. Unknown users and
// wrong passwords produce the same AuthError so usernames cannot be
// probed.
func (e *Engine) login(ctx context.Context, sess *net.Session, username, password string) error {
	if err := model.ValidateUsername(username); err != nil {
		return mud.E(mud.Auth, "login_failed", "invalid username or password")
	}
	p, err := e.stores.Players.GetByUsername(ctx, username)
	if err != nil {
		if mud.IsKind(err, mud.NotFound) {
			return mud.E(mud.Auth, "login_failed", "invalid username or password")
		}
		return err
	}
	if !checkPassword(e.cfg.Server.SecretKey, p.PasswordHash, password) {
		return mud.E(mud.Auth, "login_failed", "invalid username or password")
	}
	if _, online := e.sessionByPlayer(p.ID); online {
		return mud.E(mud.Conflict, "already_online", "%s is already connected", p.Username)
	}

	p.LastLogin = time.Now().UTC()
	p.DeriveStats()
	if err := e.stores.Players.Update(ctx, p); err != nil {
		return err
	}
	return e.attach(ctx, sess, p, "login_success")
}

// registerPlayer creates the account and attaches it. Username collisions
// surface as the store's Conflict error.
func (e *Engine) registerPlayer(ctx context.Context, sess *net.Session, username, password string) error {
	if err := model.ValidateUsername(username); err != nil {
		return err
	}
	if err := model.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := hashPassword(e.cfg.Server.SecretKey, password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	p := &model.Player{
		Username:        username,
		PasswordHash:    hash,
		PreferredLocale: sess.LocaleCode(),
		CreatedAt:       now,
		LastLogin:       now,
		CurrentRoomID:   e.cfg.Game.StartRoom,
		Stats: model.StatBlock{
			Str: startingStat, Dex: startingStat, Con: startingStat,
			Int: startingStat, Wis: startingStat, Cha: startingStat,
		},
		Gold:  startingGold,
		Level: 1,
	}
	p.DeriveStats()

	created, err := e.stores.Players.Create(ctx, p)
	if err != nil {
		if mud.IsKind(err, mud.Conflict) {
			return mud.E(mud.Conflict, "username_taken", "username %s is already taken", username)
		}
		return err
	}
	e.log.Info("player registered", zap.String("username", created.Username))
	return e.attach(ctx, sess, created, "register_success")
}

// attach turns an authenticated player into a playing session: world
// placement, registry binding, history row, presence broadcast, welcome
// envelope, auto-look, and the aggro check.
func (e *Engine) attach(ctx context.Context, sess *net.Session, p *model.Player, action string) error {
	roomID := p.CurrentRoomID
	if !e.world.HasRoom(roomID) {
		roomID = e.cfg.Game.StartRoom
		p.CurrentRoomID = roomID
	}

	sess.SetPlayer(p)
	sess.SetState(net.StatePlaying)
	e.bind(sess, p)

	if err := e.world.PlacePlayer(p.ID, roomID); err != nil {
		sess.SetPlayer(nil)
		sess.SetState(net.StateAuth)
		e.unbindPlayer(p, sess.ID)
		return err
	}

	e.openHistory(ctx, sess, p.ID)

	e.BroadcastRoom(roomID, net.NewMsg(net.TypePlayerJoined).
		With("username", p.Username).
		With("room_id", roomID).
		With("message", e.catalog.T("en", "world.player_joined", p.Username)), sess.ID)
	event.Emit(e.bus, event.PlayerJoined{
		PlayerID:  p.ID,
		Username:  p.Username,
		SessionID: sess.ID,
		RoomID:    roomID,
	})

	loc := sess.LocaleCode()
	sess.SendSuccess(action, e.catalog.T(loc, "welcome", p.Username), map[string]any{
		"username": p.Username,
		"room_id":  roomID,
		"level":    p.Level,
	})
	if view, err := e.RoomView(sess); err == nil {
		sess.Send(view)
	}

	e.log.Info("player attached",
		zap.String("username", p.Username),
		zap.String("room", roomID),
		zap.String("session", sess.ID[:8]),
		zap.String("transport", sess.Transport))

	e.checkAggro(ctx, sess, roomID)
	return nil
}

// playerRef snapshots the identity combat needs from a session.
func playerRef(sess *net.Session, p *model.Player) combat.PlayerRef {
	return combat.PlayerRef{
		ID:        p.ID,
		SessionID: sess.ID,
		Username:  p.Username,
		Locale:    sess.LocaleCode(),
		Stats:     p.Stats,
	}
}

// checkAggro runs the room-entry aggro check for an attached session.
func (e *Engine) checkAggro(ctx context.Context, sess *net.Session, roomID string) {
	p := sess.Player()
	if p == nil {
		return
	}
	e.combat.EngageOnEntry(ctx, playerRef(sess, p), roomID)
}
