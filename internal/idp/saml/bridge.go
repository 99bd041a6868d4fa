// Package saml lets users of an org sign in through the org's SAML 2.0
// identity provider. Tollgate acts as the service provider: it sends a
// signed AuthnRequest over the HTTP-Redirect binding and consumes the
// signed Response posted back to its ACS endpoint.
package saml

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/beevik/etree"
	"github.com/google/uuid"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	nsProtocol  = "urn:oasis:names:tc:SAML:2.0:protocol"
	nsAssertion = "urn:oasis:names:tc:SAML:2.0:assertion"
	nsMetadata  = "urn:oasis:names:tc:SAML:2.0:metadata"
	nsDSig      = "http://www.w3.org/2000/09/xmldsig#"

	BindingHTTPPost   = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	NameIDUnspecified = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	StatusSuccess     = "urn:oasis:names:tc:SAML:2.0:status:Success"

	// RequestTTL bounds how long an AuthnRequest id is accepted in
	// InResponseTo.
	RequestTTL = 10 * time.Minute

	// MaxClockSkew is tolerated on every assertion time bound.
	MaxClockSkew = 2 * time.Minute
)

var (
	ErrUnknownIdP       = errors.New("saml: unknown identity provider")
	ErrIdPDisabled      = errors.New("saml: identity provider disabled")
	ErrInvalidAssertion = errors.New("saml: invalid assertion")
	ErrAssertionExpired = errors.New("saml: assertion outside validity window")
	ErrAudienceMismatch = errors.New("saml: audience mismatch")

	// ErrNoLocalUser is returned when the subject maps to no user and
	// provisioning is not allowed.
	ErrNoLocalUser = errors.New("saml: no local user for subject")
)

// RequestStore remembers outstanding AuthnRequest ids.
type RequestStore interface {
	PutSAMLRequest(ctx context.Context, requestID string, r ephemeral.SAMLRequest, ttl time.Duration) error
	TakeSAMLRequest(ctx context.Context, requestID string) (ephemeral.SAMLRequest, error)
}

// Bridge is the SAML service provider.
type Bridge struct {
	Store    store.Store
	Requests RequestStore
	Audit    audit.Sink

	// EntityID identifies tollgate to IdPs; assertions must name it as
	// their audience. ACSURL is where IdPs post responses.
	EntityID string
	ACSURL   string
	Keys     *KeyPair

	Now func() time.Time
}

// Login is a verified assertion mapped to a local user.
type Login struct {
	IdP         domain.SAMLIdP
	UserID      string
	Subject     string
	FlowID      string
	Provisioned bool
}

func (b *Bridge) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Bridge) emit(ctx context.Context, ev audit.Event) {
	if b.Audit != nil {
		b.Audit.Emit(ctx, ev)
	}
}

func (b *Bridge) idp(ctx context.Context, lookup func(context.Context) (domain.SAMLIdP, error)) (domain.SAMLIdP, error) {
	idp, err := store.RetryRead(ctx, lookup)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SAMLIdP{}, ErrUnknownIdP
	}
	if err != nil {
		return domain.SAMLIdP{}, err
	}
	if !idp.Active {
		return domain.SAMLIdP{}, ErrIdPDisabled
	}
	return idp, nil
}

// InitiateSPLogin returns the IdP URL that carries a signed AuthnRequest
// for the named IdP. flowID travels as RelayState and the request id is
// remembered for the InResponseTo check.
func (b *Bridge) InitiateSPLogin(ctx context.Context, idpName, flowID string) (string, error) {
	idp, err := b.idp(ctx, func(ctx context.Context) (domain.SAMLIdP, error) {
		return b.Store.SAML().GetIdPByName(ctx, idpName)
	})
	if err != nil {
		return "", err
	}

	requestID := "id-" + uuid.NewString()
	req := b.authnRequest(requestID, idp.SSOURL)
	doc := etree.NewDocument()
	doc.SetRoot(req)
	xml, err := doc.WriteToBytes()
	if err != nil {
		return "", fmt.Errorf("saml: encode request: %w", err)
	}

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(xml); err != nil {
		return "", err
	}
	if err := fw.Close(); err != nil {
		return "", err
	}

	sctx := dsig.NewDefaultSigningContext(b.Keys)
	query := "SAMLRequest=" + url.QueryEscape(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if flowID != "" {
		query += "&RelayState=" + url.QueryEscape(flowID)
	}
	query += "&SigAlg=" + url.QueryEscape(sctx.GetSignatureMethodIdentifier())
	sig, err := sctx.SignString(query)
	if err != nil {
		return "", fmt.Errorf("saml: sign request: %w", err)
	}
	query += "&Signature=" + url.QueryEscape(base64.StdEncoding.EncodeToString(sig))

	if err := b.Requests.PutSAMLRequest(ctx, requestID, ephemeral.SAMLRequest{IdPID: idp.ID, FlowID: flowID}, RequestTTL); err != nil {
		return "", err
	}

	sep := "?"
	if strings.Contains(idp.SSOURL, "?") {
		sep = "&"
	}
	return idp.SSOURL + sep + query, nil
}

func (b *Bridge) authnRequest(id, destination string) *etree.Element {
	req := etree.NewElement("samlp:AuthnRequest")
	req.CreateAttr("xmlns:samlp", nsProtocol)
	req.CreateAttr("xmlns:saml", nsAssertion)
	req.CreateAttr("ID", id)
	req.CreateAttr("Version", "2.0")
	req.CreateAttr("IssueInstant", b.now().UTC().Format(time.RFC3339))
	req.CreateAttr("Destination", destination)
	req.CreateAttr("AssertionConsumerServiceURL", b.ACSURL)
	req.CreateAttr("ProtocolBinding", BindingHTTPPost)

	req.CreateElement("saml:Issuer").SetText(b.EntityID)
	policy := req.CreateElement("samlp:NameIDPolicy")
	policy.CreateAttr("AllowCreate", "true")
	policy.CreateAttr("Format", NameIDUnspecified)
	return req
}

// ConsumeAssertion verifies a base64 encoded SAML Response and maps its
// subject to a local user. Disabled IdPs are refused before any signature
// work. Each AuthnRequest id is accepted once.
func (b *Bridge) ConsumeAssertion(ctx context.Context, samlResponse, relayState string) (Login, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(samlResponse))
	if err != nil {
		return Login{}, fmt.Errorf("%w: encoding", ErrInvalidAssertion)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return Login{}, fmt.Errorf("%w: xml", ErrInvalidAssertion)
	}
	resp := doc.Root()
	if resp == nil || resp.Tag != "Response" {
		return Login{}, fmt.Errorf("%w: not a response", ErrInvalidAssertion)
	}

	issuer := issuerOf(resp)
	if issuer == "" {
		return Login{}, fmt.Errorf("%w: missing issuer", ErrInvalidAssertion)
	}
	idp, err := b.idp(ctx, func(ctx context.Context) (domain.SAMLIdP, error) {
		return b.Store.SAML().GetIdPByEntityID(ctx, issuer)
	})
	if err != nil {
		return Login{}, err
	}

	now := b.now()
	a, err := verifiedAssertion(resp, idp, now)
	if err != nil {
		return Login{}, err
	}
	if status := attrOf(child(child(resp, "Status"), "StatusCode"), "Value"); status != StatusSuccess {
		return Login{}, fmt.Errorf("%w: status %q", ErrInvalidAssertion, status)
	}
	if err := b.checkConditions(a, now); err != nil {
		return Login{}, err
	}

	subject := textOf(child(child(a, "Subject"), "NameID"))
	if subject == "" {
		return Login{}, fmt.Errorf("%w: missing subject", ErrInvalidAssertion)
	}

	inResponseTo := attrOf(subjectConfirmation(a), "InResponseTo")
	if inResponseTo == "" {
		inResponseTo = resp.SelectAttrValue("InResponseTo", "")
	}
	if inResponseTo == "" {
		return Login{}, fmt.Errorf("%w: unsolicited response", ErrInvalidAssertion)
	}
	pending, err := b.Requests.TakeSAMLRequest(ctx, inResponseTo)
	if errors.Is(err, ephemeral.ErrNotFound) {
		return Login{}, fmt.Errorf("%w: unknown or replayed request", ErrInvalidAssertion)
	}
	if err != nil {
		return Login{}, err
	}
	if pending.IdPID != idp.ID || (relayState != "" && relayState != pending.FlowID) {
		return Login{}, fmt.Errorf("%w: request mismatch", ErrInvalidAssertion)
	}

	userID, provisioned, err := b.resolveUser(ctx, idp, subject, attributes(a))
	if err != nil {
		return Login{}, err
	}

	b.emit(ctx, audit.Event{
		Type:   audit.SAMLLogin,
		UserID: userID,
		Fields: map[string]any{"idp": idp.Name, "subject": subject, "provisioned": provisioned},
	})
	return Login{IdP: idp, UserID: userID, Subject: subject, FlowID: pending.FlowID, Provisioned: provisioned}, nil
}

// verifiedAssertion returns the assertion as covered by a valid signature,
// either on the Response or on the Assertion itself. Only data read from
// the returned element is trusted.
func verifiedAssertion(resp *etree.Element, idp domain.SAMLIdP, now time.Time) (*etree.Element, error) {
	cert, err := parseCertificate(idp.Certificate)
	if err != nil {
		return nil, fmt.Errorf("%w: idp certificate: %v", ErrInvalidAssertion, err)
	}
	vctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}})
	vctx.Clock = dsig.NewFakeClockAt(now)

	if child(resp, "Signature") != nil {
		verified, err := vctx.Validate(resp)
		if err != nil {
			return nil, fmt.Errorf("%w: response signature: %v", ErrInvalidAssertion, err)
		}
		a := child(verified, "Assertion")
		if a == nil {
			return nil, fmt.Errorf("%w: no assertion", ErrInvalidAssertion)
		}
		return a, nil
	}

	a := child(resp, "Assertion")
	if a == nil {
		return nil, fmt.Errorf("%w: no assertion", ErrInvalidAssertion)
	}
	if child(a, "Signature") == nil {
		return nil, fmt.Errorf("%w: unsigned", ErrInvalidAssertion)
	}
	verified, err := vctx.Validate(a)
	if err != nil {
		return nil, fmt.Errorf("%w: assertion signature: %v", ErrInvalidAssertion, err)
	}
	return verified, nil
}

func (b *Bridge) checkConditions(a *etree.Element, now time.Time) error {
	cond := child(a, "Conditions")
	if cond == nil {
		return fmt.Errorf("%w: no conditions", ErrInvalidAssertion)
	}
	if err := checkWindow(cond, now); err != nil {
		return err
	}
	if scd := subjectConfirmation(a); scd != nil {
		if err := checkWindow(scd, now); err != nil {
			return err
		}
	}

	var matched, restricted bool
	for _, ar := range children(cond, "AudienceRestriction") {
		restricted = true
		for _, aud := range children(ar, "Audience") {
			if textOf(aud) == b.EntityID {
				matched = true
			}
		}
	}
	if !restricted || !matched {
		return ErrAudienceMismatch
	}
	return nil
}

func checkWindow(el *etree.Element, now time.Time) error {
	if v := el.SelectAttrValue("NotBefore", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%w: NotBefore", ErrInvalidAssertion)
		}
		if now.Add(MaxClockSkew).Before(t) {
			return ErrAssertionExpired
		}
	}
	if v := el.SelectAttrValue("NotOnOrAfter", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%w: NotOnOrAfter", ErrInvalidAssertion)
		}
		if !now.Add(-MaxClockSkew).Before(t) {
			return ErrAssertionExpired
		}
	}
	return nil
}

func issuerOf(resp *etree.Element) string {
	if iss := textOf(child(resp, "Issuer")); iss != "" {
		return iss
	}
	return textOf(child(child(resp, "Assertion"), "Issuer"))
}

func subjectConfirmation(a *etree.Element) *etree.Element {
	return child(child(child(a, "Subject"), "SubjectConfirmation"), "SubjectConfirmationData")
}

// attributes collects the first value of each attribute by Name and by
// FriendlyName.
func attributes(a *etree.Element) map[string]string {
	out := make(map[string]string)
	for _, stmt := range children(a, "AttributeStatement") {
		for _, attr := range children(stmt, "Attribute") {
			if child(attr, "AttributeValue") == nil {
				continue
			}
			val := textOf(child(attr, "AttributeValue"))
			for _, name := range []string{attr.SelectAttrValue("Name", ""), attr.SelectAttrValue("FriendlyName", "")} {
				if _, seen := out[name]; name != "" && !seen {
					out[name] = val
				}
			}
		}
	}
	return out
}

// child returns the first child element with the local name tag, whatever
// its namespace prefix. A nil parent yields nil.
func child(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

func children(el *etree.Element, tag string) []*etree.Element {
	if el == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

func attrOf(el *etree.Element, name string) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(name, "")
}

func textOf(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}
