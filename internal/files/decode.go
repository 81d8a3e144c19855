package files

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LookupEncoding resolves a configured encoding name.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "windows-1251", "cp1251":
		return charmap.Windows1251, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// decodeReader converts r to NFC-normalized UTF-8. A UTF-8 or UTF-16 byte
// order mark overrides enc and is dropped; invalid UTF-8 becomes U+FFFD.
func decodeReader(r io.Reader, enc encoding.Encoding) io.Reader {
	dec := unicode.BOMOverride(enc.NewDecoder())
	return transform.NewReader(r, transform.Chain(dec, norm.NFC))
}
