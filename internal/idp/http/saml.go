package http

import (
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// SAMLHandler serves the service provider side of SAML 2.0 sign-in.
type SAMLHandler struct {
	Flows      *service.FlowService
	Bridge     *saml.Bridge
	TrustProxy bool

	// LoginURL is the page that renders flow steps. The ACS sends the
	// browser there with the session and step when the flow needs more
	// input. Empty renders the step as JSON.
	LoginURL string
}

// HandleMetadata godoc
//
//	@Summary		SAML SP metadata
//	@Description	Returns the EntityDescriptor to import at the identity provider.
//	@Tags			SAML
//	@Produce		xml
//	@Success		200	{string}	string	"SAML metadata"
//	@Router			/saml/metadata [get].
func (h *SAMLHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.Bridge.Metadata()
	if err != nil {
		slogx.FromContext(r.Context()).Error("render saml metadata", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(md)
}

// HandleLogin godoc
//
//	@Summary		Sign in with an external IdP
//	@Description	Hands a session waiting for credentials to the named identity provider.
//	@Tags			SAML
//	@Param			idp		path		string				true	"Identity provider name"
//	@Param			session	query		string				true	"Flow session id"
//	@Success		302		{string}	string				"redirect to the identity provider"
//	@Failure		400		{object}	authsdk.OAuth2Error	"error, error_description"
//	@Failure		404		{object}	authsdk.OAuth2Error	"unknown_idp"
//	@Router			/saml/{idp}/login [get].
func (h *SAMLHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	target, err := h.Flows.StartSAML(r.Context(), r.URL.Query().Get("session"), r.PathValue("idp"))
	if err != nil {
		writeError(w, r, "start saml", err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleACS godoc
//
//	@Summary		SAML assertion consumer service
//	@Description	Verifies a posted SAML response and resumes the flow named by RelayState.
//	@Tags			SAML
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			SAMLResponse	formData	string					true	"Base64 SAML response"
//	@Param			RelayState		formData	string					true	"Flow session id"
//	@Success		200				{object}	authsdk.StepResponse	"next step"
//	@Success		302				{string}	string					"redirect to the client or the login page"
//	@Failure		400				{object}	authsdk.OAuth2Error		"invalid_assertion, assertion_expired, audience_mismatch"
//	@Router			/saml/acs [post].
func (h *SAMLHandler) HandleACS(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	step, err := h.Flows.CompleteSAML(r.Context(),
		r.PostForm.Get("SAMLResponse"),
		r.PostForm.Get("RelayState"),
		httpx.ClientIP(r, h.TrustProxy),
	)
	if err != nil {
		redirectOrError(w, r, "saml acs", err)
		return
	}

	switch {
	case step.RedirectTo != "":
		http.Redirect(w, r, step.RedirectTo, http.StatusFound)
	case h.LoginURL != "":
		http.Redirect(w, r, h.stepURL(step), http.StatusSeeOther)
	default:
		writeStep(w, step)
	}
}

func (h *SAMLHandler) stepURL(step service.Step) string {
	u, err := url.Parse(h.LoginURL)
	if err != nil {
		return h.LoginURL
	}
	q := u.Query()
	q.Set("session", step.Session)
	q.Set("step", stepNames[step.Status])
	u.RawQuery = q.Encode()
	return u.String()
}
