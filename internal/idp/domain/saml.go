package domain

import "time"

// SAMLIdP is a trusted identity provider configured for an org.
type SAMLIdP struct {
	ID       string
	OrgID    string
	Name     string
	EntityID string
	SSOURL   string

	// Certificate is the PEM encoded IdP signing certificate.
	Certificate string

	Active        bool
	AutoProvision bool
	LinkByEmail   bool
	DefaultRoleID string
	Mapping       AttributeMapping
}

// AttributeMapping names the assertion attributes used for provisioning.
// Empty names fall back to the NameID.
type AttributeMapping struct {
	Email    string `yaml:"email" json:"email,omitempty"`
	Username string `yaml:"username" json:"username,omitempty"`
	Locale   string `yaml:"locale" json:"locale,omitempty"`
}

// SAMLIdentity maps an asserted subject at an IdP to a local user.
type SAMLIdentity struct {
	IdPID     string
	Subject   string
	UserID    string
	CreatedAt time.Time
}
