package domain

import (
	"slices"
	"time"
)

// ClientType separates browser based PKCE clients from server side clients
// holding a secret. Scopes carry the same type.
type ClientType string

const (
	ClientInteractive  ClientType = "interactive"
	ClientConfidential ClientType = "confidential"
)

func (t ClientType) Valid() bool {
	return t == ClientInteractive || t == ClientConfidential
}

type Client struct {
	ID         string
	Name       string
	Type       ClientType
	SecretHash string

	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	Scopes                 []string

	RequireMFA bool
	Enabled    bool
	OrgID      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Client) IsConfidential() bool { return c.Type == ClientConfidential }

// AllowsRedirect matches uri exactly against the registered list.
func (c Client) AllowsRedirect(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIs, uri)
}

func (c Client) AllowsPostLogoutRedirect(uri string) bool {
	return uri != "" && slices.Contains(c.PostLogoutRedirectURIs, uri)
}
