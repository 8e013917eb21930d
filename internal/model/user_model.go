package model

// Role mirrors the user_group tiers of the identity system. Credential
// issuance lives outside this service; we only read the resolved role from
// the bearer token.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

var roleTier = map[Role]int{
	RoleUser:      1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

// AtLeast reports whether r grants the capabilities of min or higher.
// Unknown roles never pass.
func (r Role) AtLeast(min Role) bool {
	return roleTier[r] != 0 && roleTier[r] >= roleTier[min]
}
