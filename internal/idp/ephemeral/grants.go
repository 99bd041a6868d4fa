package ephemeral

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

// PutGrant stores an impersonation grant under its id.
func (s *Store) PutGrant(ctx context.Context, g domain.ImpersonationGrant) error {
	ttl := time.Until(g.ExpiresAt)
	if ttl <= 0 {
		return ErrNotFound
	}
	return s.putJSON(ctx, s.key("grant", g.ID), g, ttl)
}

// TakeGrant atomically reads and deletes the grant (GETDEL).
func (s *Store) TakeGrant(ctx context.Context, id string) (domain.ImpersonationGrant, error) {
	var g domain.ImpersonationGrant
	if err := s.takeJSON(ctx, s.key("grant", id), &g); err != nil {
		return domain.ImpersonationGrant{}, err
	}
	g.ID = id
	return g, nil
}

// SAMLRequest is remembered between the AuthnRequest and the ACS callback.
type SAMLRequest struct {
	IdPID  string `json:"idp_id"`
	FlowID string `json:"flow_id"`
}

func (s *Store) PutSAMLRequest(ctx context.Context, requestID string, r SAMLRequest, ttl time.Duration) error {
	return s.putJSON(ctx, s.key("saml", requestID), r, ttl)
}

// TakeSAMLRequest returns the pending request for InResponseTo and forgets it.
func (s *Store) TakeSAMLRequest(ctx context.Context, requestID string) (SAMLRequest, error) {
	var r SAMLRequest
	err := s.takeJSON(ctx, s.key("saml", requestID), &r)
	return r, err
}
