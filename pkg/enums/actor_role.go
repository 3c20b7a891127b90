package enums

// ActorRole identifies the kind of account behind a request.
type ActorRole string

const (
	RoleCustomer  ActorRole = "customer"
	RoleVendor    ActorRole = "vendor"
	RoleOrganizer ActorRole = "organizer"
	RoleAdmin     ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	RoleCustomer,
	RoleVendor,
	RoleOrganizer,
	RoleAdmin,
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if r == candidate {
			return true
		}
	}
	return false
}
