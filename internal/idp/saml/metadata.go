package saml

import (
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
)

// Metadata renders the SP EntityDescriptor that IdP administrators import.
func (b *Bridge) Metadata() ([]byte, error) {
	ed := etree.NewElement("md:EntityDescriptor")
	ed.CreateAttr("xmlns:md", nsMetadata)
	ed.CreateAttr("xmlns:ds", nsDSig)
	ed.CreateAttr("entityID", b.EntityID)

	sp := ed.CreateElement("md:SPSSODescriptor")
	sp.CreateAttr("AuthnRequestsSigned", "true")
	sp.CreateAttr("WantAssertionsSigned", "true")
	sp.CreateAttr("protocolSupportEnumeration", nsProtocol)

	if b.Keys != nil && b.Keys.Cert != nil {
		kd := sp.CreateElement("md:KeyDescriptor")
		kd.CreateAttr("use", "signing")
		kd.CreateElement("ds:KeyInfo").
			CreateElement("ds:X509Data").
			CreateElement("ds:X509Certificate").
			SetText(base64.StdEncoding.EncodeToString(b.Keys.Cert.Raw))
	}

	sp.CreateElement("md:NameIDFormat").SetText(NameIDUnspecified)

	acs := sp.CreateElement("md:AssertionConsumerService")
	acs.CreateAttr("Binding", BindingHTTPPost)
	acs.CreateAttr("Location", b.ACSURL)
	acs.CreateAttr("index", "0")
	acs.CreateAttr("isDefault", "true")

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.SetRoot(ed)
	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("saml: encode metadata: %w", err)
	}
	return out, nil
}
