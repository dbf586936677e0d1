package normalizer

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/trunov/freshconnect-images/internal/encoder"
	"github.com/trunov/freshconnect-images/internal/entities"
)

var (
	// type/subtype, optional ;param=value pairs, then ;base64, and a payload.
	dataURI   = regexp.MustCompile(`^(?i:data:)([A-Za-z0-9][A-Za-z0-9.+-]*/[A-Za-z0-9][A-Za-z0-9.+-]*)((?:;[A-Za-z0-9.+-]+=[^;,\s]*)*);(?i:base64),([\s\S]*)$`)
	dataStart = regexp.MustCompile(`(?i)data:`)

	bareHandle = regexp.MustCompile(`^blob:\S+$`)
	// A handle wrongly glued onto a remote origin or a server path.
	prefixedHandle = regexp.MustCompile(`^(?:(?i:https?)://\S*?|/\S*?)(blob:\S+)$`)

	remoteURL        = regexp.MustCompile(`^(?i:https?)://[^\s/?#]+\S*$`)
	protocolRelative = regexp.MustCompile(`^//[^\s/?#]+\S*$`)
	absolutePath     = regexp.MustCompile(`^/[^/\s]\S*$`)
	relativePath     = regexp.MustCompile(`^[^/\s:][^\s:]*$`)

	base64Stray = strings.NewReplacer("-", "+", "_", "/", " ", "", "\t", "", "\r", "", "\n", "")
)

// Normalize classifies a stored reference string, repairing known malformed
// shapes. It is total and never consults configuration; server-relative
// paths are resolved later by Resolve.
func Normalize(raw string) entities.Representation {
	s := strings.TrimSpace(raw)
	if s == "" {
		return unrecognized()
	}

	// A string that is a data URI is judged whole; a bad payload is never
	// cut down to a valid prefix.
	if hasDataPrefix(s) {
		if rep, ok := parseDataURI(s); ok {
			return rep
		}
		return unrecognized()
	}

	if bareHandle.MatchString(s) {
		return entities.Ephemeral(s)
	}
	if m := prefixedHandle.FindStringSubmatch(s); m != nil {
		return entities.Ephemeral(m[1])
	}

	// A data URI glued behind an origin or path. The prefix may not contain
	// whitespace and the payload must run to the end.
	if loc := dataStart.FindStringIndex(s); loc != nil && !strings.ContainsAny(s[:loc[0]], " \t\r\n") {
		if rep, ok := parseDataURI(s[loc[0]:]); ok {
			return rep
		}
	}

	if remoteURL.MatchString(s) {
		return entities.Remote(s)
	}
	if protocolRelative.MatchString(s) {
		return entities.Remote("https:" + s)
	}

	if absolutePath.MatchString(s) || relativePath.MatchString(s) {
		return entities.ServerPath(s)
	}

	return unrecognized()
}

func unrecognized() entities.Representation {
	return encoder.Placeholder(entities.ReasonUnrecognized, "")
}

func hasDataPrefix(s string) bool {
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// parseDataURI accepts base64url and embedded whitespace, drops media type
// parameters and re-emits the payload as padded standard base64. Payloads
// that do not decode are rejected.
func parseDataURI(s string) (entities.Representation, bool) {
	m := dataURI.FindStringSubmatch(s)
	if m == nil {
		return entities.Representation{}, false
	}

	payload := base64Stray.Replace(m[3])
	payload = strings.TrimRight(payload, "=")
	if payload == "" || len(payload)%4 == 1 {
		return entities.Representation{}, false
	}
	data, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return entities.Representation{}, false
	}

	return entities.Inline(strings.ToLower(m[1]), base64.StdEncoding.EncodeToString(data)), true
}

// Clean is Normalize followed by serialization.
func Clean(raw string) string {
	return Normalize(raw).String()
}

// Resolve renders a representation to a src attribute. Only server-relative
// paths depend on baseURL.
func Resolve(rep entities.Representation, baseURL string) string {
	if rep.Kind != entities.KindServerPath || baseURL == "" {
		return rep.String()
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(rep.Path, "/")
}
