package syncable

import (
	"encoding/json"

	"bugwars-sync/internal/envelope"
	"bugwars-sync/internal/model"
)

const InventorySyncID = envelope.TypeInventory

var (
	ErrInvalidItem          = model.ErrInvalidItem
	ErrInvalidQuantity      = model.ErrInvalidQuantity
	ErrInsufficientQuantity = model.ErrInsufficientQuantity
	ErrInventoryFull        = model.ErrInventoryFull
)

// Inventory holds item stacks. It syncs immediately. The slot limit comes
// from the peer; until the peer has sent one the inventory is unlimited.
type Inventory struct {
	Dirty

	inv     model.Inventory
	changes Listeners[[]model.InventoryItem]
}

func NewInventory() *Inventory {
	return &Inventory{}
}

func (i *Inventory) SyncID() string     { return InventorySyncID }
func (i *Inventory) Strategy() Strategy { return Immediate() }

func (i *Inventory) Subscribe(fn func([]model.InventoryItem)) (cancel func()) {
	return i.changes.Subscribe(fn)
}

func (i *Inventory) AddItem(itemID string, quantity int) error {
	return i.AddItemWithMetadata(itemID, quantity, "")
}

// AddItemWithMetadata adds a stack that only merges with stacks carrying
// the same metadata.
func (i *Inventory) AddItemWithMetadata(itemID string, quantity int, metadata string) error {
	if err := i.inv.Add(itemID, quantity, metadata); err != nil {
		return err
	}
	i.changed()
	return nil
}

func (i *Inventory) RemoveItem(itemID string, quantity int) error {
	if err := i.inv.Remove(itemID, quantity, ""); err != nil {
		return err
	}
	i.changed()
	return nil
}

func (i *Inventory) Quantity(itemID string) int { return i.inv.Quantity(itemID) }

// Len is the number of occupied slots.
func (i *Inventory) Len() int { return len(i.inv.Items) }

func (i *Inventory) MaxSlots() int { return i.inv.MaxSlots }

// Items returns a copy of the stacks sorted by item id.
func (i *Inventory) Items() []model.InventoryItem { return i.inv.Clone().Items }

func (i *Inventory) Clear() {
	if len(i.inv.Items) == 0 {
		return
	}
	i.inv.Items = nil
	i.changed()
}

func (i *Inventory) changed() {
	i.MarkDirty()
	i.changes.Notify(i.Items())
}

func (i *Inventory) SerializeForSync() (json.RawMessage, error) {
	return json.Marshal(i.inv.Clone())
}

// DeserializeFromSync replaces every stack and the slot limit with data.
// Nothing changes if data is invalid.
func (i *Inventory) DeserializeFromSync(data []byte) error {
	var next model.Inventory
	if err := json.Unmarshal(data, &next); err != nil {
		return err
	}
	next, err := next.Normalize()
	if err != nil {
		return err
	}
	i.inv = next
	i.changes.Notify(i.Items())
	return nil
}

func (i *Inventory) OnConnected(s Sender) {
	s.Send(envelope.TypeGetInventory, nil)
}

func (i *Inventory) OnDisconnected() {}
