package model

// Credentials are the OAuth application and user tokens the bridge was
// connected with. They are kept in memory only.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// CanRefresh reports whether enough is known to refresh the access token.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != "" && c.ClientID != "" && c.ClientSecret != ""
}

// TokenSet is a successful response from the OAuth token endpoint.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Identity is the DonationAlerts user behind an access token, together with
// the short-lived token used to authenticate the Centrifugo connection.
type Identity struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	SocketToken string `json:"-"`
}
