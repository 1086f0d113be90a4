package torrentfile

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

const (
	magnetPrefix = "magnet:?"
	btihPrefix   = "urn:btih:"
)

// ParseMagnet reads a magnet URI of the form
//
//	magnet:?xt=urn:btih:<info hash>&dn=<name>&tr=<tracker url>
//
// Parameters may come in any order. Only xt is mandatory; the info hash is
// accepted as 40 hex characters or 32 base32 characters.
func ParseMagnet(uri string) (*Magnet, error) {
	if !strings.HasPrefix(uri, magnetPrefix) {
		return nil, &ParseError{Field: "magnet", Err: fmt.Errorf("missing %q prefix", magnetPrefix)}
	}

	var m Magnet
	var haveHash bool
	for _, param := range strings.Split(strings.TrimPrefix(uri, magnetPrefix), "&") {
		if param == "" {
			continue
		}
		name, value, ok := strings.Cut(param, "=")
		if !ok {
			return nil, &ParseError{Field: "magnet", Err: fmt.Errorf("parameter %q has no value", param)}
		}
		switch name {
		case "xt":
			hash, err := parseBTIH(value)
			if err != nil {
				return nil, err
			}
			m.InfoHash = hash
			haveHash = true
		case "dn":
			dn, err := url.QueryUnescape(value)
			if err != nil {
				return nil, &ParseError{Field: "dn", Err: err}
			}
			m.Name = dn
		case "tr":
			// The first tracker wins; later ones are alternatives we do not use.
			if m.Tracker != "" {
				continue
			}
			tr, err := url.PathUnescape(value)
			if err != nil {
				return nil, &ParseError{Field: "tr", Err: err}
			}
			m.Tracker = strings.TrimSpace(tr)
		}
	}

	if !haveHash {
		return nil, missingField("xt")
	}
	return &m, nil
}

func parseBTIH(value string) ([20]byte, error) {
	var hash [20]byte
	if !strings.HasPrefix(value, btihPrefix) {
		return hash, &ParseError{Field: "xt", Err: fmt.Errorf("%q is not a %s urn", value, btihPrefix)}
	}
	encoded := strings.TrimPrefix(value, btihPrefix)

	var raw []byte
	var err error
	switch len(encoded) {
	case 40:
		raw, err = hex.DecodeString(encoded)
	case 32:
		raw, err = base32.StdEncoding.DecodeString(strings.ToUpper(encoded))
	default:
		err = fmt.Errorf("info hash %q has %d characters", encoded, len(encoded))
	}
	if err != nil {
		return hash, &ParseError{Field: "xt", Err: err}
	}
	copy(hash[:], raw)
	return hash, nil
}

func (m *Magnet) InfoHashHex() string {
	return hex.EncodeToString(m.InfoHash[:])
}
