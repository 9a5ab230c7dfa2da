package httpapi

import (
	"time"

	"github.com/MrEthical07/inkauth"
	"github.com/MrEthical07/inkauth/identity"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type profileView struct {
	FullName string `json:"fullName"`
	PenName  string `json:"penName,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

type userView struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Role          string      `json:"role"`
	Profile       profileView `json:"profile"`
	EmailVerified bool        `json:"emailVerified"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func newUserView(ident *identity.Identity) userView {
	v := userView{
		ID:            ident.ID,
		Email:         ident.Email,
		Role:          string(ident.Role),
		EmailVerified: ident.EmailVerifiedAt != nil,
		CreatedAt:     ident.CreatedAt,
	}
	switch p := ident.Profile.(type) {
	case identity.ReaderProfile:
		v.Profile.FullName = p.FullName
	case identity.WriterProfile:
		v.Profile = profileView{FullName: p.FullName, PenName: p.PenName, Bio: p.Bio}
	case identity.AdminProfile:
		v.Profile.FullName = p.FullName
	}
	return v
}

type tokensView struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitzero"`
	SessionID        string    `json:"sessionId"`
}

type authView struct {
	User   userView   `json:"user"`
	Tokens tokensView `json:"tokens"`
}

func newAuthView(res *inkauth.AuthResult) authView {
	return authView{
		User: newUserView(res.Identity),
		Tokens: tokensView{
			AccessToken:      res.Tokens.AccessToken,
			AccessExpiresAt:  res.Tokens.AccessExpiresAt,
			RefreshToken:     res.Tokens.RefreshToken,
			RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
			SessionID:        res.Tokens.SessionID,
		},
	}
}

type sessionView struct {
	SessionID  string    `json:"sessionId"`
	UserAgent  string    `json:"userAgent"`
	IP         string    `json:"ip"`
	IssuedAt   time.Time `json:"issuedAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

type registerBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"fullName"`
	PenName  string `json:"penName"`
	Bio      string `json:"bio"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordBody struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type forgotPasswordBody struct {
	Email string `json:"email"`
}

type resetPasswordBody struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}
