package enums

// ActorRole identifies which side of the marketplace issued a request.
type ActorRole string

const (
	ActorRoleStore ActorRole = "store"
	ActorRoleAdmin ActorRole = "admin"
)

var actorRoles = []ActorRole{ActorRoleStore, ActorRoleAdmin}

func (r ActorRole) String() string { return string(r) }

func (r ActorRole) IsValid() bool { return known(r, actorRoles) }

func ParseActorRole(value string) (ActorRole, error) {
	return parse(value, actorRoles, "actor role")
}
