package auth

// Roles
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
	RoleCustomer = "customer"
)

// Principal is the authenticated caller. It is handed explicitly to every
// service entry point that needs an authorization decision.
type Principal struct {
	UserID     int64  `json:"user_id"`
	Role       string `json:"role"`
	CustomerID int64  `json:"customer_id,omitempty"`
}

// CanDecideRequests allows approving and rejecting storage requests
func (p Principal) CanDecideRequests() bool {
	return p.Role == RoleAdmin
}

// CanOperate allows the staff views: capacity ledger, audit trail, outbox
func (p Principal) CanOperate() bool {
	return p.Role == RoleAdmin || p.Role == RoleEmployee
}

// CanViewRequest allows staff, and customers for their own requests
func (p Principal) CanViewRequest(ownerCustomerID int64) bool {
	if p.CanOperate() {
		return true
	}
	return p.Role == RoleCustomer && p.CustomerID != 0 && p.CustomerID == ownerCustomerID
}
