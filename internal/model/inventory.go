package model

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidItem          = errors.New("invalid item id")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInventoryFull        = errors.New("inventory full")
)

// DefaultMaxSlots is the slot limit of a new inventory.
const DefaultMaxSlots = 20

// InventoryItem is one stack. Metadata is opaque JSON such as durability;
// stacks only merge when their metadata matches.
type InventoryItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Metadata string `json:"metadata,omitempty"`
}

// Inventory is the inventory sync payload. Items are sorted by ItemID,
// then Metadata. MaxSlots caps the number of stacks; 0 means unlimited.
type Inventory struct {
	Items    []InventoryItem `json:"items"`
	MaxSlots int             `json:"max_slots,omitempty"`
}

func validItem(itemID string, quantity int) error {
	if itemID == "" {
		return ErrInvalidItem
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: %s has %d", ErrInvalidQuantity, itemID, quantity)
	}
	return nil
}

func (inv *Inventory) index(itemID, metadata string) int {
	for i, it := range inv.Items {
		if it.ItemID == itemID && it.Metadata == metadata {
			return i
		}
	}
	return -1
}

func (inv *Inventory) sort() {
	sort.Slice(inv.Items, func(a, b int) bool {
		if inv.Items[a].ItemID != inv.Items[b].ItemID {
			return inv.Items[a].ItemID < inv.Items[b].ItemID
		}
		return inv.Items[a].Metadata < inv.Items[b].Metadata
	})
}

// Add stacks quantity onto the stack with the same id and metadata, or
// opens a new slot for it.
func (inv *Inventory) Add(itemID string, quantity int, metadata string) error {
	if err := validItem(itemID, quantity); err != nil {
		return err
	}
	if i := inv.index(itemID, metadata); i >= 0 {
		inv.Items[i].Quantity += quantity
		return nil
	}
	if inv.MaxSlots > 0 && len(inv.Items) >= inv.MaxSlots {
		return fmt.Errorf("%w: %d of %d slots used", ErrInventoryFull, len(inv.Items), inv.MaxSlots)
	}
	inv.Items = append(inv.Items, InventoryItem{ItemID: itemID, Quantity: quantity, Metadata: metadata})
	inv.sort()
	return nil
}

// Remove takes quantity from the stack with the same id and metadata and
// drops the stack once it is empty. Without metadata the first stack of
// itemID is used.
func (inv *Inventory) Remove(itemID string, quantity int, metadata string) error {
	if err := validItem(itemID, quantity); err != nil {
		return err
	}
	i := inv.index(itemID, metadata)
	if i < 0 && metadata == "" {
		for j, it := range inv.Items {
			if it.ItemID == itemID {
				i = j
				break
			}
		}
	}
	have := 0
	if i >= 0 {
		have = inv.Items[i].Quantity
	}
	if have < quantity {
		return fmt.Errorf("%w: have %d %s, need %d", ErrInsufficientQuantity, have, itemID, quantity)
	}
	if have == quantity {
		inv.Items = append(inv.Items[:i], inv.Items[i+1:]...)
	} else {
		inv.Items[i].Quantity = have - quantity
	}
	return nil
}

// Quantity sums every stack of itemID.
func (inv Inventory) Quantity(itemID string) int {
	n := 0
	for _, it := range inv.Items {
		if it.ItemID == itemID {
			n += it.Quantity
		}
	}
	return n
}

func (inv Inventory) Clone() Inventory {
	out := Inventory{Items: make([]InventoryItem, len(inv.Items)), MaxSlots: inv.MaxSlots}
	copy(out.Items, inv.Items)
	return out
}

// Normalize validates every stack, merges stacks with the same id and
// metadata and sorts the result. inv is left untouched.
func (inv Inventory) Normalize() (Inventory, error) {
	out := Inventory{Items: make([]InventoryItem, 0, len(inv.Items)), MaxSlots: inv.MaxSlots}
	for _, it := range inv.Items {
		if err := validItem(it.ItemID, it.Quantity); err != nil {
			return Inventory{}, err
		}
		if i := out.index(it.ItemID, it.Metadata); i >= 0 {
			out.Items[i].Quantity += it.Quantity
			continue
		}
		out.Items = append(out.Items, it)
	}
	if out.MaxSlots > 0 && len(out.Items) > out.MaxSlots {
		return Inventory{}, fmt.Errorf("%w: %d stacks for %d slots", ErrInventoryFull, len(out.Items), out.MaxSlots)
	}
	out.sort()
	return out, nil
}
