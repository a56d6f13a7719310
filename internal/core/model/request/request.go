package request

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=5,max=10"`
	Name     string `json:"name" validate:"required,min=5"`
	Email    string `json:"email" validate:"required,emailformat"`
	Password string `json:"password" validate:"required,strongpassword"`
}

// LoginRequest accepts either the username or the email in Username.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RecoveryRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,strongpassword"`
}

// ModifyAccountRequest is a partial update; nil fields are left untouched.
type ModifyAccountRequest struct {
	Username *string `json:"username,omitempty" validate:"omitnil,min=5,max=10"`
	Name     *string `json:"name,omitempty" validate:"omitnil,min=5"`
	Email    *string `json:"email,omitempty" validate:"omitnil,emailformat"`
}

func (r *ModifyAccountRequest) IsEmpty() bool {
	return r == nil || (r.Username == nil && r.Name == nil && r.Email == nil)
}

type ModifyOtherRequest struct {
	ID string `json:"id" validate:"required"`
	ModifyAccountRequest
}

type DeactivateRequest struct {
	ConfirmPass string `json:"confirmPass" validate:"required"`
}
