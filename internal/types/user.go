package types

// TipUser is the signed-in user derived from the token cookie. All fields
// come from JWT claims; Token keeps the raw compact JWT for backend auth.
type TipUser struct {
	Sub         string `json:"sub"`
	TenantID    string `json:"tenantId"`
	TenantAlias string `json:"tenantAlias"`
	UserID      string `json:"userId"`
	Token       string `json:"token"`
	Exp         int64  `json:"exp"`
	Iat         int64  `json:"iat"`
}

// Valid reports whether the claims identify a usable tenant user. The
// tenant alias is the discriminating claim: tokens without it belong to
// anonymous sessions.
func (u *TipUser) Valid() bool {
	return u != nil && u.TenantAlias != "" && u.Token != ""
}
