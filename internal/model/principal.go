package model

// Role описывает роль вызывающего.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Principal описывает вызывающего в рамках одного запроса.
// Token хранит исходный bearer-токен для передачи в нижележащие сервисы.
type Principal struct {
	UserID int64
	Role   Role
	Token  string
}

// IsAdmin сообщает, обладает ли вызывающий правами администратора.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccess сообщает, может ли вызывающий работать с ресурсом владельца ownerID.
func (p Principal) CanAccess(ownerID int64) bool {
	return p.IsAdmin() || (p.UserID != 0 && p.UserID == ownerID)
}
