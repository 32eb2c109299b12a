package domain

// UserRole 定义调用方角色类型
type UserRole string

const (
	UserRoleCustomer UserRole = "customer" // 顾客
	UserRoleStaff    UserRole = "staff"    // 店员，可处理订单
	UserRoleAdmin    UserRole = "admin"    // 管理员
)

// User 表示从访问令牌中解析出的调用方
// 账号注册与登录由外部身份服务负责
type User struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	IsActive bool     `json:"is_active"`
}

// IsAdmin 判断用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// CanManageOrders 管理员与店员可以处理订单和库存
func (u *User) CanManageOrders() bool {
	return u.Role == UserRoleAdmin || u.Role == UserRoleStaff
}

// Actor 返回写入台账/告警的操作人标识
func (u *User) Actor() *string {
	if u == nil || u.Username == "" {
		return nil
	}
	name := u.Username
	return &name
}

// RefreshTokenRequest 表示刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
