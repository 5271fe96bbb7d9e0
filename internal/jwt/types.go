package jwt

type Role int

const (
	RoleAdmin Role = iota
)

type RegisterAdmin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Admin struct {
	Id             string `json:"id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
	PasswordHash   string `json:"password"`
}

// Claims is the typed view of a parsed admin token.
type Claims struct {
	AdminID        string
	Email          string
	OrganizationID string
	Role           string
	ExpiresAt      int64
}
