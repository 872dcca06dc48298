// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"errors"
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
)

// Errors returned when a JID fails validation.
var (
	ErrInvalidUTF8     = errors.New("jid: address contains invalid UTF-8")
	ErrEmptyLocalpart  = errors.New("jid: the localpart must be larger than 0 bytes")
	ErrEmptyResource   = errors.New("jid: the resourcepart must be larger than 0 bytes")
	ErrDomainLength    = errors.New("jid: the domainpart must be between 1 and 1023 bytes")
	ErrLocalLength     = errors.New("jid: the localpart must be smaller than 1024 bytes")
	ErrResourceLength  = errors.New("jid: the resourcepart must be smaller than 1024 bytes")
	ErrForbiddenChars  = errors.New("jid: localpart contains forbidden characters")
	ErrInvalidIPv6     = errors.New("jid: domainpart is not a valid IPv6 address")
	ErrInvalidDomainIP = errors.New("jid: domainpart contains unbalanced brackets")
)

// JID represents an XMPP address comprising a localpart, domainpart, and
// resourcepart. All parts of a JID are valid UTF-8 in their canonical form,
// which gives comparison the greatest chance of succeeding.
type JID struct {
	local    string
	domain   string
	resource string
}

// Parse constructs a new JID from the given string representation.
func Parse(s string) (*JID, error) {
	localpart, domainpart, resourcepart, err := SplitString(s)
	if err != nil {
		return nil, err
	}
	return New(localpart, domainpart, resourcepart)
}

// MustParse is like Parse but panics if the JID cannot be parsed.
// It simplifies safe initialization of JIDs from known-good constant strings.
func MustParse(s string) *JID {
	j, err := Parse(s)
	if err != nil {
		panic(`jid: Parse(` + strconv.Quote(s) + `): ` + err.Error())
	}
	return j
}

// New constructs a new JID from the given localpart, domainpart, and
// resourcepart.
func New(localpart, domainpart, resourcepart string) (*JID, error) {
	if !utf8.ValidString(localpart) || !utf8.ValidString(domainpart) || !utf8.ValidString(resourcepart) {
		return nil, ErrInvalidUTF8
	}

	domain, err := prepareDomain(domainpart)
	if err != nil {
		return nil, err
	}

	var local, resource string
	if localpart != "" {
		// RFC 7622 §3.3.1 forbids a few characters that the UsernameCaseMapped
		// profile would otherwise allow.
		if strings.ContainsAny(localpart, `"&'/:<>@`) {
			return nil, ErrForbiddenChars
		}
		local, err = precis.UsernameCaseMapped.String(localpart)
		if err != nil {
			return nil, err
		}
		if len(local) > 1023 {
			return nil, ErrLocalLength
		}
	}
	if resourcepart != "" {
		resource, err = precis.OpaqueString.String(resourcepart)
		if err != nil {
			return nil, err
		}
		if len(resource) > 1023 {
			return nil, ErrResourceLength
		}
	}

	return &JID{local: local, domain: domain, resource: resource}, nil
}

func prepareDomain(domainpart string) (string, error) {
	l := len(domainpart)
	if l < 1 || l > 1023 {
		return "", ErrDomainLength
	}

	switch {
	case strings.HasPrefix(domainpart, "[") && strings.HasSuffix(domainpart, "]"):
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return "", ErrInvalidIPv6
		}
		return domainpart, nil
	case strings.ContainsAny(domainpart, "[]"):
		return "", ErrInvalidDomainIP
	case net.ParseIP(domainpart) != nil:
		return domainpart, nil
	}

	// RFC 7622 §3.2.1: A-labels are converted to U-labels during preparation.
	domain, err := idna.Lookup.ToUnicode(domainpart)
	if err != nil {
		return "", err
	}
	if l = len(domain); l < 1 || l > 1023 {
		return "", ErrDomainLength
	}
	return domain, nil
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID. The parts are not guaranteed to be valid.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1: the separators are matched before any transformation
	// algorithm is applied.
	if sep := strings.IndexByte(s, '/'); sep != -1 {
		if sep == len(s)-1 {
			return "", "", "", ErrEmptyResource
		}
		resourcepart = s[sep+1:]
		s = s[:sep]
	}

	switch sep := strings.IndexByte(s, '@'); sep {
	case -1:
		domainpart = s
	case 0:
		return "", "", "", ErrEmptyLocalpart
	default:
		localpart = s[:sep]
		domainpart = s[sep+1:]
	}

	// A trailing label separator is stripped before any other
	// canonicalization step.
	domainpart = strings.TrimSuffix(domainpart, ".")
	return localpart, domainpart, resourcepart, nil
}

// WithResource returns a copy of the JID with a new resourcepart.
func (j *JID) WithResource(resourcepart string) (*JID, error) {
	return New(j.local, j.domain, resourcepart)
}

// Bare returns a copy of the JID without a resourcepart.
func (j *JID) Bare() *JID {
	if j == nil {
		return nil
	}
	return &JID{local: j.local, domain: j.domain}
}

// Domain returns a copy of the JID without a resourcepart or localpart.
func (j *JID) Domain() *JID {
	if j == nil {
		return nil
	}
	return &JID{domain: j.domain}
}

// Localpart gets the localpart of a JID (eg "username").
func (j *JID) Localpart() string {
	if j == nil {
		return ""
	}
	return j.local
}

// Domainpart gets the domainpart of a JID (eg. "example.net").
func (j *JID) Domainpart() string {
	if j == nil {
		return ""
	}
	return j.domain
}

// Resourcepart gets the resourcepart of a JID.
func (j *JID) Resourcepart() string {
	if j == nil {
		return ""
	}
	return j.resource
}

// Network satisfies the net.Addr interface by returning the name of the
// network ("xmpp").
func (*JID) Network() string {
	return "xmpp"
}

// String converts a JID to its string representation.
func (j *JID) String() string {
	if j == nil {
		return ""
	}
	var b strings.Builder
	b.Grow(len(j.local) + len(j.domain) + len(j.resource) + 2)
	if j.local != "" {
		b.WriteString(j.local)
		b.WriteByte('@')
	}
	b.WriteString(j.domain)
	if j.resource != "" {
		b.WriteByte('/')
		b.WriteString(j.resource)
	}
	return b.String()
}

// Equal performs an octet-for-octet comparison with the given JID.
func (j *JID) Equal(j2 *JID) bool {
	if j == nil || j2 == nil {
		return j == j2
	}
	return *j == *j2
}

// MarshalXML satisfies the xml.Marshaler interface and marshals the JID as
// XML chardata.
func (j *JID) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(j.String(), start)
}

// UnmarshalXML satisfies the xml.Unmarshaler interface and unmarshals the JID
// from the elements chardata.
func (j *JID) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	parsed, err := Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*j = *parsed
	return nil
}

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface and marshals the
// JID as an XML attribute. A nil JID produces no attribute.
func (j *JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if j == nil {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr satisfies the xml.UnmarshalerAttr interface and unmarshals
// an XML attribute into a valid JID (or returns an error).
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	if attr.Value == "" {
		return nil
	}
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = *parsed
	return nil
}
