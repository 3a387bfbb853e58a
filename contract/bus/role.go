package bus

// Role names the part a message plays in routing.
type Role string

const (
	RoleCommand  Role = "command"
	RoleEvent    Role = "event"
	RoleRequest  Role = "request"
	RoleResponse Role = "response"
)

// RolesOf lists every role msg implements. A type may play several roles.
func RolesOf(msg Message) []Role {
	var roles []Role

	if _, ok := msg.(Command); ok {
		roles = append(roles, RoleCommand)
	}

	if _, ok := msg.(Event); ok {
		roles = append(roles, RoleEvent)
	}

	if _, ok := msg.(Request); ok {
		roles = append(roles, RoleRequest)
	}

	if _, ok := msg.(Response); ok {
		roles = append(roles, RoleResponse)
	}

	return roles
}

// Plays reports whether msg implements role.
func Plays(msg Message, role Role) bool {
	switch role {
	case RoleCommand:
		_, ok := msg.(Command)
		return ok
	case RoleEvent:
		_, ok := msg.(Event)
		return ok
	case RoleRequest:
		_, ok := msg.(Request)
		return ok
	case RoleResponse:
		_, ok := msg.(Response)
		return ok
	default:
		return false
	}
}
