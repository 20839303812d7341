package model

import "github.com/duskmud/server/internal/mud"

// LocationKind says what kind of entity holds an object.
type LocationKind string

const (
	InRoom            LocationKind = "room"
	InPlayerInventory LocationKind = "player_inventory"
	InNPCInventory    LocationKind = "npc_inventory"
)

func (k LocationKind) Valid() bool {
	switch k {
	case InRoom, InPlayerInventory, InNPCInventory:
		return true
	}
	return false
}

// Location pins an object to exactly one holder.
type Location struct {
	Kind LocationKind `json:"kind"`
	ID   string       `json:"id"`
}

// GameObject is anything a player can see, carry, or trade.
type GameObject struct {
	ID          string         `json:"id"`
	Name        LocMap         `json:"name"`
	Description LocMap         `json:"description"`
	ObjectType  string         `json:"object_type"`
	Category    string         `json:"category"`
	Weight      int            `json:"weight"`
	Stackable   bool           `json:"stackable"`
	MaxStack    int            `json:"max_stack"`
	Properties  map[string]any `json:"properties,omitempty"`
	Location    Location       `json:"location"`
}

// Price reads the merchant price from properties; zero means not for sale.
func (o *GameObject) Price() int {
	v, ok := o.Properties["price"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64: // JSON numbers decode as float64
		return int(n)
	}
	return 0
}

func (o *GameObject) Validate() error {
	if o.ID == "" {
		return mud.E(mud.Input, "invalid_object", "object id must not be empty")
	}
	if err := o.Name.Validate(); err != nil {
		return err
	}
	if !o.Location.Kind.Valid() {
		return mud.E(mud.Input, "invalid_object", "object %s has unknown location kind %q", o.ID, o.Location.Kind)
	}
	if o.Location.ID == "" {
		return mud.E(mud.Input, "invalid_object", "object %s has no location id", o.ID)
	}
	if o.Weight < 0 {
		return mud.E(mud.Input, "invalid_object", "object %s has negative weight", o.ID)
	}
	if o.Stackable && o.MaxStack < 1 {
		return mud.E(mud.Input, "invalid_object", "stackable object %s needs max_stack >= 1", o.ID)
	}
	return nil
}

func (o *GameObject) Clone() *GameObject {
	cp := *o
	cp.Name = cloneLocMap(o.Name)
	cp.Description = cloneLocMap(o.Description)
	if o.Properties != nil {
		cp.Properties = make(map[string]any, len(o.Properties))
		for k, v := range o.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}
