package codec

import (
	"strings"

	"github.com/munnerz/goautoneg"
)

// Codec encodes structured handler results into a wire format.
// The router picks a codec per request from the Accept header using Negotiate.
type Codec interface {
	// ContentType is the media type written to the Content-Type header.
	ContentType() string

	// Encode serializes the mapping. The whole payload is produced before anything is
	// written to the client, so a failing Encode never leaks partial output.
	Encode(m *Map) ([]byte, error)

	// Decode parses a payload previously produced by Encode.
	Decode(data []byte) (*Map, error)
}

// Negotiate returns the codec the Accept header prefers, honoring q-values. Media
// ranges with q=0 are never selected. An empty header, or one that matches no codec,
// selects the first codec.
func Negotiate(accept string, codecs ...Codec) Codec {
	if len(codecs) == 0 {
		return NewJSONCodec()
	}

	for _, clause := range goautoneg.ParseAccept(accept) {
		if clause.Q <= 0 {
			continue
		}
		typ, sub := strings.ToLower(clause.Type), strings.ToLower(clause.SubType)
		for _, c := range codecs {
			ctyp, csub := splitMediaType(c.ContentType())
			if (typ == "*" || typ == ctyp) && (sub == "*" || sub == csub) {
				return c
			}
		}
	}

	return codecs[0]
}

func splitMediaType(contentType string) (string, string) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	typ, sub, _ := strings.Cut(strings.TrimSpace(mediaType), "/")
	return strings.ToLower(typ), strings.ToLower(sub)
}
