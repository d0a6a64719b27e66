package rbac

type Role string
type Action string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionReport  Action = "report"
	ActionComment Action = "comment"
	ActionTriage  Action = "triage"
	ActionResolve Action = "resolve"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleStaff:
		return action == ActionRead || action == ActionComment || action == ActionTriage || action == ActionResolve
	case RoleCitizen:
		return action == ActionRead || action == ActionReport || action == ActionComment
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleCitizen, RoleStaff, RoleAdmin:
		return Role(role)
	default:
		return RoleCitizen
	}
}
