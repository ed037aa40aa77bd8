package checklist

import (
	"dealflow/authz"
	"time"
)

// ItemsVersion is the schema version written into persisted item lists.
// Bump it together with a migration whenever Item gains fields.
const ItemsVersion = 1

// Item is a single labeled readiness task.
type Item struct {
	Label string  `json:"label"`
	Done  bool    `json:"done"`
	Note  *string `json:"note,omitempty"`
}

// itemsDoc is the versioned envelope each sub-list round-trips through
// jsonb as.
type itemsDoc struct {
	Version int    `json:"version"`
	Items   []Item `json:"items"`
}

// ListKind names one of the three independently-owned sub-lists.
type ListKind string

const (
	BuyerList  ListKind = "BUYER"
	SellerList ListKind = "SELLER"
	BrokerList ListKind = "BROKER"
)

// listOps maps each sub-list to the capability required to mutate it.
// Agents share the broker list; every role may read all three.
var listOps = map[ListKind]authz.Operation{
	BuyerList:  authz.OpToggleBuyerItems,
	SellerList: authz.OpToggleSellerItems,
	BrokerList: authz.OpToggleBrokerItems,
}

// Checklist is the per-listing pre-close aggregate. Exactly one exists
// per listing once the deal is under contract.
type Checklist struct {
	ID            string
	ListingID     string
	BuyerItems    []Item
	SellerItems   []Item
	BrokerItems   []Item
	LastUpdatedBy *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c *Checklist) list(kind ListKind) *[]Item {
	switch kind {
	case BuyerList:
		return &c.BuyerItems
	case SellerList:
		return &c.SellerItems
	case BrokerList:
		return &c.BrokerItems
	default:
		return nil
	}
}

// IsReadyToClose reports whether every item across all three sub-lists is
// done. Three empty lists are vacuously ready.
func IsReadyToClose(c Checklist) bool {
	for _, items := range [][]Item{c.BuyerItems, c.SellerItems, c.BrokerItems} {
		for _, item := range items {
			if !item.Done {
				return false
			}
		}
	}
	return true
}
