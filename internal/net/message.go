package net

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Outbound message types. Every server→client message carries one in its
// "type" field.
const (
	TypeRoomInfo          = "room_info"
	TypeRoomMessage       = "room_message"
	TypeSystemMessage     = "system_message"
	TypeChatMessage       = "chat_message"
	TypePrivateMessage    = "private_message"
	TypePlayerJoined      = "player_joined"
	TypePlayerLeft        = "player_left"
	TypePlayerMoved       = "player_moved"
	TypeCombatStart       = "combat_start"
	TypeCombatMessage     = "combat_message"
	TypeCombatStatus      = "combat_status"
	TypeCombatEnd         = "combat_end"
	TypeTurnStart         = "turn_start"
	TypeActionResult      = "action_result"
	TypeMonsterAggro      = "monster_aggro"
	TypeShopList          = "shop_list"
	TypeTransactionResult = "transaction_result"
	TypeNPCDialogue       = "npc_dialogue"
	TypeStats             = "stats"
	TypeInventory         = "inventory"
	TypeUIUpdate          = "ui_update"
	TypeError             = "error"
)

// Msg is one outbound message. Sessions serialize it to a single JSON
// line, or to compact text when the plain rendering flag is set.
type Msg map[string]any

func NewMsg(typ string) Msg {
	return Msg{"type": typ}
}

// With sets a field and returns the message for chaining.
func (m Msg) With(key string, v any) Msg {
	m[key] = v
	return m
}

func (m Msg) Type() string {
	t, _ := m["type"].(string)
	return t
}

// Result builds a success envelope of the given type:
// {type, status:"success", data:{action, message, data}}.
func Result(typ, action, message string, data map[string]any) Msg {
	payload := map[string]any{"action": action, "message": message}
	if data != nil {
		payload["data"] = data
	}
	return Msg{"type": typ, "status": "success", "data": payload}
}

// Success is Result with the generic action_result type.
func Success(action, message string, data map[string]any) Msg {
	return Result(TypeActionResult, action, message, data)
}

// ErrorEnvelope builds the error shape sent for every failed command.
func ErrorEnvelope(code, message string) Msg {
	return Msg{"type": TypeError, "status": "error", "code": code, "message": message}
}

// System wraps free text in a system_message envelope.
func System(text string) Msg {
	return Msg{"type": TypeSystemMessage, "message": text}
}

// EncodeJSON renders the message as one JSON line (no trailing newline).
func (m Msg) EncodeJSON() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Render flattens the message to compact text for plain-mode sessions and
// raw telnet clients. It favors the human-readable fields and falls back
// to key=value pairs for everything else.
func (m Msg) Render() string {
	typ := m.Type()
	var b strings.Builder

	if typ != "" && typ != TypeSystemMessage && typ != TypeChatMessage {
		b.WriteString("[")
		b.WriteString(typ)
		b.WriteString("] ")
	}

	switch typ {
	case TypeError:
		fmt.Fprintf(&b, "%v", m["message"])
		if code, ok := m["code"]; ok {
			fmt.Fprintf(&b, " (%v)", code)
		}
		return b.String()
	case TypeChatMessage:
		fmt.Fprintf(&b, "%v: %v", m["from"], m["message"])
		return b.String()
	}

	if data, ok := m["data"].(map[string]any); ok {
		if msg, ok := data["message"].(string); ok && msg != "" {
			b.WriteString(msg)
			return b.String()
		}
	}
	if msg, ok := m["message"].(string); ok && msg != "" {
		b.WriteString(msg)
		return b.String()
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		if k == "type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}
