package domain

// TokenPair is what the token endpoint returns: the short-lived access
// token and the refresh token that can mint its successor.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"` // always "Bearer"
	ExpiresIn        int64  `json:"expires_in"` // seconds until access expiry
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}
