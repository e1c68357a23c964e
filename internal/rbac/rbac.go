package rbac

type Role string
type Action string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
)

const (
	// ActionRead covers opening sessions and reading values, history and search.
	ActionRead Action = "read"
	// ActionWrite covers local edits, undo and redo.
	ActionWrite Action = "write"
	// ActionShare covers changing document membership.
	ActionShare Action = "share"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleEditor:
		return action == ActionRead || action == ActionWrite || action == ActionShare
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleEditor:
		return Role(role)
	default:
		return RoleViewer
	}
}
