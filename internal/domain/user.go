package domain

// Roles
const (
	RoleUser  = "user"  // Regular app user
	RoleAdmin = "admin" // Back-office operator
)

// User Model
type User struct {
	ID        uint   `gorm:"primaryKey" json:"id"`                               // Primary key
	Phone     string `gorm:"type:varchar(20);uniqueIndex;not null" json:"phone"` // Verified phone number
	Role      string `gorm:"type:varchar(16);default:user" json:"role"`          // Role: user or admin
	CreatedAt int64  `gorm:"autoCreateTime:milli" json:"created_at"`             // Timestamp of creation in milliseconds
}
