package model

import "fmt"

// ClientRole represents the RBAC role assigned to an API client.
type ClientRole string

const (
	ClientAdmin     ClientRole = "admin"
	ClientEvaluator ClientRole = "evaluator"
	ClientReader    ClientRole = "reader"
)

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters.
func RoleRank(r ClientRole) int {
	switch r {
	case ClientAdmin:
		return 3
	case ClientEvaluator:
		return 2
	case ClientReader:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole ClientRole) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ParseClientRole converts a configured role name into a ClientRole.
func ParseClientRole(s string) (ClientRole, error) {
	switch r := ClientRole(s); r {
	case ClientAdmin, ClientEvaluator, ClientReader:
		return r, nil
	default:
		return "", fmt.Errorf("unknown client role %q", s)
	}
}

// ValidateClientID checks that a client ID conforms to the allowed format.
// Client IDs must be 1-255 ASCII characters: alphanumeric, dots, hyphens,
// underscores, and @ signs.
func ValidateClientID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("client_id is required")
	}
	if len(id) > 255 {
		return fmt.Errorf("client_id must be at most 255 characters")
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' {
			return fmt.Errorf("client_id contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
