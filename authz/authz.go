// Package authz defines the closed role set of the marketplace and the
// capability table mapping roles to the operations they may perform.
// Authorization decisions are made here, in one auditable place, rather
// than as conditional checks scattered through the domain services.
package authz

// Role identifies one of the four marketplace parties. Values are the
// stable string tokens persisted in the users table.
type Role string

const (
	RoleBroker Role = "BROKER"
	RoleAgent  Role = "AGENT"
	RoleSeller Role = "SELLER"
	RoleBuyer  Role = "BUYER"
)

// Operation names a guarded domain action.
type Operation string

const (
	OpCreateSellerDocument Operation = "document.create.seller_upload"
	OpCreateBuyerDocument  Operation = "document.create.buyer_upload"
	OpCreateAgentDocument  Operation = "document.create.agent_provided"
	OpCreateSystemDocument Operation = "document.create.system_generated"

	OpToggleSellerItems Operation = "checklist.toggle.seller"
	OpToggleBuyerItems  Operation = "checklist.toggle.buyer"
	OpToggleBrokerItems Operation = "checklist.toggle.broker"

	OpAdvanceSellerProgress Operation = "progress.advance.seller"
	OpAdvanceBuyerProgress  Operation = "progress.advance.buyer"

	OpTransitionListing Operation = "listing.transition"
	OpSendMessage       Operation = "message.send"
)

// Actor carries the identity the auth layer established for the current
// call. The core trusts this input.
type Actor struct {
	UserID string
	Role   Role
}

// capabilities is the full authorization matrix. An absent entry means
// denied. Agents act on behalf of their broker and share the broker's
// checklist and document capabilities.
var capabilities = map[Role]map[Operation]bool{
	RoleBroker: {
		OpCreateAgentDocument:  true,
		OpCreateSystemDocument: true,
		OpToggleBrokerItems:    true,
		OpTransitionListing:    true,
		OpSendMessage:          true,
	},
	RoleAgent: {
		OpCreateAgentDocument:  true,
		OpCreateSystemDocument: true,
		OpToggleBrokerItems:    true,
		OpTransitionListing:    true,
		OpSendMessage:          true,
	},
	RoleSeller: {
		OpCreateSellerDocument:  true,
		OpToggleSellerItems:     true,
		OpAdvanceSellerProgress: true,
		OpSendMessage:           true,
	},
	RoleBuyer: {
		OpCreateBuyerDocument:  true,
		OpToggleBuyerItems:     true,
		OpAdvanceBuyerProgress: true,
		OpSendMessage:          true,
	},
}

// Allowed reports whether role may perform op.
func Allowed(role Role, op Operation) bool {
	return capabilities[role][op]
}

// Valid reports whether role is one of the four known roles.
func Valid(role Role) bool {
	switch role {
	case RoleBroker, RoleAgent, RoleSeller, RoleBuyer:
		return true
	default:
		return false
	}
}
