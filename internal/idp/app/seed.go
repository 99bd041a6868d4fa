package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
)

// Seed is the YAML document loaded by `tollgate seed`. Secrets and
// passwords go through os.ExpandEnv so they can stay out of the file.
type Seed struct {
	Scopes   []SeedScope  `yaml:"scopes"`
	Roles    []SeedRole   `yaml:"roles"`
	Orgs     []SeedOrg    `yaml:"orgs"`
	Clients  []SeedClient `yaml:"clients"`
	Users    []SeedUser   `yaml:"users"`
	SAMLIdPs []SeedIdP    `yaml:"saml_idps"`
}

type SeedScope struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Restricted bool   `yaml:"restricted"`
}

type SeedRole struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Scopes       []string `yaml:"scopes"`
	Impersonator bool     `yaml:"impersonator"`
}

type SeedOrg struct {
	ID                      string         `yaml:"id"`
	Slug                    string         `yaml:"slug"`
	Name                    string         `yaml:"name"`
	AllowPublicRegistration bool           `yaml:"allow_public_registration"`
	RequireMFA              bool           `yaml:"require_mfa"`
	DefaultRole             string         `yaml:"default_role"`
	Groups                  []SeedOrgGroup `yaml:"groups"`
}

type SeedOrgGroup struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type SeedClient struct {
	ID                     string   `yaml:"id"`
	Name                   string   `yaml:"name"`
	Type                   string   `yaml:"type"`
	Secret                 string   `yaml:"secret"`
	RedirectURIs           []string `yaml:"redirect_uris"`
	PostLogoutRedirectURIs []string `yaml:"post_logout_redirect_uris"`
	Scopes                 []string `yaml:"scopes"`
	RequireMFA             bool     `yaml:"require_mfa"`
	Disabled               bool     `yaml:"disabled"`
	Org                    string   `yaml:"org"`
}

type SeedUser struct {
	ID            string   `yaml:"id"`
	Username      string   `yaml:"username"`
	Email         string   `yaml:"email"`
	EmailVerified bool     `yaml:"email_verified"`
	Password      string   `yaml:"password"`
	Locale        string   `yaml:"locale"`
	Orgs          []string `yaml:"orgs"`
	Groups        []string `yaml:"groups"`
	Roles         []string `yaml:"roles"`
}

type SeedIdP struct {
	ID              string                  `yaml:"id"`
	Org             string                  `yaml:"org"`
	Name            string                  `yaml:"name"`
	EntityID        string                  `yaml:"entity_id"`
	SSOURL          string                  `yaml:"sso_url"`
	Certificate     string                  `yaml:"certificate"`
	CertificateFile string                  `yaml:"certificate_file"`
	Inactive        bool                    `yaml:"inactive"`
	AutoProvision   bool                    `yaml:"auto_provision"`
	LinkByEmail     bool                    `yaml:"link_by_email"`
	DefaultRole     string                  `yaml:"default_role"`
	Mapping         domain.AttributeMapping `yaml:"mapping"`
}

// SeedResult counts what Apply inserted and what already existed.
type SeedResult struct {
	Created int
	Skipped int
}

// LoadSeedFile reads and parses the seed at path. Relative certificate
// files are resolved against the seed's directory.
func LoadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer func() { _ = f.Close() }()

	seed, err := ParseSeed(f)
	if err != nil {
		return nil, err
	}
	for i := range seed.SAMLIdPs {
		p := &seed.SAMLIdPs[i]
		if p.CertificateFile != "" && !filepath.IsAbs(p.CertificateFile) {
			p.CertificateFile = filepath.Join(filepath.Dir(path), p.CertificateFile)
		}
	}
	return seed, nil
}

// ParseSeed decodes a seed document, rejecting unknown fields.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	var errs []error
	for _, sc := range s.Scopes {
		if sc.Name == "" {
			errs = append(errs, errors.New("scope: name is required"))
		}
		if !domain.ClientType(sc.Type).Valid() {
			errs = append(errs, fmt.Errorf("scope %q: type must be interactive or confidential", sc.Name))
		}
	}
	for _, r := range s.Roles {
		if r.Name == "" {
			errs = append(errs, errors.New("role: name is required"))
		}
	}
	for _, o := range s.Orgs {
		if o.Slug == "" {
			errs = append(errs, fmt.Errorf("org %q: slug is required", o.Name))
		}
	}
	for _, c := range s.Clients {
		if c.ID == "" {
			errs = append(errs, errors.New("client: id is required"))
			continue
		}
		switch domain.ClientType(c.Type) {
		case domain.ClientConfidential:
			if c.Secret == "" {
				errs = append(errs, fmt.Errorf("client %q: confidential clients need a secret", c.ID))
			}
		case domain.ClientInteractive:
			if len(c.RedirectURIs) == 0 {
				errs = append(errs, fmt.Errorf("client %q: interactive clients need a redirect uri", c.ID))
			}
			if c.Secret != "" {
				errs = append(errs, fmt.Errorf("client %q: interactive clients cannot have a secret", c.ID))
			}
		default:
			errs = append(errs, fmt.Errorf("client %q: type must be interactive or confidential", c.ID))
		}
	}
	for _, u := range s.Users {
		if u.Username == "" || u.Email == "" {
			errs = append(errs, fmt.Errorf("user %q: username and email are required", u.ID))
		}
	}
	for _, p := range s.SAMLIdPs {
		if p.Name == "" || p.EntityID == "" || p.SSOURL == "" {
			errs = append(errs, fmt.Errorf("saml idp %q: name, entity_id and sso_url are required", p.Name))
		}
		if (p.Certificate == "") == (p.CertificateFile == "") {
			errs = append(errs, fmt.Errorf("saml idp %q: set exactly one of certificate and certificate_file", p.Name))
		}
	}
	return errors.Join(errs...)
}

// Apply inserts the seed in one transaction. Rows that already exist are
// left untouched, so applying the same seed twice is safe. Scopes are
// upserted.
func (s *Seed) Apply(ctx context.Context, st store.Store, hasher *cryptox.Hasher, logger *slog.Logger) (SeedResult, error) {
	var res SeedResult

	// Hash outside the transaction; argon2 is slow.
	clientHashes := make(map[string]string, len(s.Clients))
	for _, c := range s.Clients {
		if c.Secret == "" {
			continue
		}
		h, err := hasher.Hash(os.ExpandEnv(c.Secret))
		if err != nil {
			return res, fmt.Errorf("hash secret for client %q: %w", c.ID, err)
		}
		clientHashes[c.ID] = h
	}
	userHashes := make(map[string]string, len(s.Users))
	for _, u := range s.Users {
		if u.Password == "" {
			continue
		}
		h, err := hasher.Hash(os.ExpandEnv(u.Password))
		if err != nil {
			return res, fmt.Errorf("hash password for user %q: %w", u.Username, err)
		}
		userHashes[u.Username] = h
	}
	certs := make(map[string]string, len(s.SAMLIdPs))
	for _, p := range s.SAMLIdPs {
		if p.CertificateFile == "" {
			certs[p.Name] = p.Certificate
			continue
		}
		b, err := os.ReadFile(filepath.Clean(p.CertificateFile))
		if err != nil {
			return res, fmt.Errorf("read certificate for idp %q: %w", p.Name, err)
		}
		certs[p.Name] = string(b)
	}

	// insert treats ErrAlreadyExists as "already seeded".
	insert := func(kind, name string, err error) error {
		switch {
		case err == nil:
			res.Created++
			logger.Debug("seed row created", "kind", kind, "name", name)
			return nil
		case errors.Is(err, store.ErrAlreadyExists):
			res.Skipped++
			logger.Debug("seed row exists", "kind", kind, "name", name)
			return nil
		default:
			return fmt.Errorf("seed %s %q: %w", kind, name, err)
		}
	}

	err := st.WithTx(ctx, func(tx store.Tx) error {
		for _, sc := range s.Scopes {
			err := tx.Scopes().Upsert(ctx, domain.Scope{
				Name:       sc.Name,
				Type:       domain.ClientType(sc.Type),
				Restricted: sc.Restricted,
			})
			if err := insert("scope", sc.Name, err); err != nil {
				return err
			}
		}

		for _, r := range s.Roles {
			err := tx.Roles().Create(ctx, domain.Role{
				ID:           orNewID(r.ID),
				Name:         r.Name,
				Scopes:       r.Scopes,
				Impersonator: r.Impersonator,
			})
			if err := insert("role", r.Name, err); err != nil {
				return err
			}
		}

		for _, o := range s.Orgs {
			orgID := orNewID(o.ID)
			err := tx.Orgs().Create(ctx, domain.Org{
				ID:                      orgID,
				Slug:                    o.Slug,
				Name:                    o.Name,
				AllowPublicRegistration: o.AllowPublicRegistration,
				RequireMFA:              o.RequireMFA,
				DefaultRoleID:           o.DefaultRole,
			})
			if err := insert("org", o.Slug, err); err != nil {
				return err
			}
			if errors.Is(err, store.ErrAlreadyExists) {
				continue
			}
			for _, g := range o.Groups {
				err := tx.Orgs().CreateGroup(ctx, domain.OrgGroup{ID: orNewID(g.ID), OrgID: orgID, Name: g.Name})
				if err := insert("group", g.Name, err); err != nil {
					return err
				}
			}
		}

		for _, c := range s.Clients {
			err := tx.Clients().Create(ctx, domain.Client{
				ID:                     c.ID,
				Name:                   c.Name,
				Type:                   domain.ClientType(c.Type),
				SecretHash:             clientHashes[c.ID],
				RedirectURIs:           c.RedirectURIs,
				PostLogoutRedirectURIs: c.PostLogoutRedirectURIs,
				Scopes:                 c.Scopes,
				RequireMFA:             c.RequireMFA,
				Enabled:                !c.Disabled,
				OrgID:                  c.Org,
			})
			if err := insert("client", c.ID, err); err != nil {
				return err
			}
		}

		for _, u := range s.Users {
			err := tx.Users().Create(ctx, domain.User{
				ID:            orNewID(u.ID),
				Username:      u.Username,
				Email:         u.Email,
				EmailVerified: u.EmailVerified,
				PasswordHash:  userHashes[u.Username],
				Locale:        u.Locale,
				OrgIDs:        u.Orgs,
				GroupIDs:      u.Groups,
				RoleIDs:       u.Roles,
			})
			if err := insert("user", u.Username, err); err != nil {
				return err
			}
		}

		for _, p := range s.SAMLIdPs {
			err := tx.SAML().CreateIdP(ctx, domain.SAMLIdP{
				ID:            orNewID(p.ID),
				OrgID:         p.Org,
				Name:          p.Name,
				EntityID:      p.EntityID,
				SSOURL:        p.SSOURL,
				Certificate:   certs[p.Name],
				Active:        !p.Inactive,
				AutoProvision: p.AutoProvision,
				LinkByEmail:   p.LinkByEmail,
				DefaultRoleID: p.DefaultRole,
				Mapping:       p.Mapping,
			})
			if err := insert("saml idp", p.Name, err); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}
	return res, nil
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return string(idx.New())
}
