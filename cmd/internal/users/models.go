package users

import "userhub/cmd/identity"

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

type updateProfileRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// listData keeps an empty page rendering as [] rather than null.
func listData(us []identity.User) []identity.User {
	if us == nil {
		return []identity.User{}
	}
	return us
}
