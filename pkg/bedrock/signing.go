package bedrock

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

const (
	// AWS Signature V4 constants
	algorithm       = "AWS4-HMAC-SHA256"
	serviceName     = "bedrock"
	requestType     = "aws4_request"
	timeFormat      = "20060102T150405Z"
	shortTimeFormat = "20060102"

	// Headers
	authorizationHeader = "Authorization"
	dateHeader          = "X-Amz-Date"
	securityTokenHeader = "X-Amz-Security-Token" //nolint:gosec // G101: AWS header name, not a credential
	hostHeader          = "Host"
)

// Headers that never take part in the signature
var unsignedHeaders = map[string]struct{}{
	"authorization":     {},
	"user-agent":        {},
	"x-amzn-trace-id":   {},
	"expect":            {},
	"transfer-encoding": {},
}

// SigningContext carries everything that varies per signed call. Build a new
// one for every outbound request, right before it is sent.
type SigningContext struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Time            time.Time
}

// NewSigningContext creates a signing context stamped with t in UTC
func NewSigningContext(creds Credentials, region string, t time.Time) SigningContext {
	return SigningContext{
		Region:          region,
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
		Time:            t.UTC(),
	}
}

// Signer handles AWS Signature V4 signing for Bedrock requests.
// It holds no per-call state and is safe for concurrent use.
type Signer struct {
	logger *slog.Logger
	debug  bool
}

// NewSigner creates a new AWS Signature V4 signer. With debug set, canonical
// requests and strings-to-sign are logged at debug level.
func NewSigner(logger *slog.Logger, debug bool) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		logger: logger,
		debug:  debug,
	}
}

// Sign computes the SigV4 signature over the exact body bytes and returns the
// complete header set to send: the input headers plus Host, X-Amz-Date,
// X-Amz-Security-Token (when a session token is set) and Authorization.
// The input headers are not modified.
func (s *Signer) Sign(sc SigningContext, method, host, path string, headers http.Header, body []byte) (http.Header, error) {
	if err := validateSigningInput(sc, method, host, path, headers); err != nil {
		return nil, err
	}

	signed := headers.Clone()
	if signed == nil {
		signed = make(http.Header)
	}

	amzDate := sc.Time.Format(timeFormat)
	signed.Set(dateHeader, amzDate)
	signed.Set(hostHeader, host)
	if sc.SessionToken != "" {
		signed.Set(securityTokenHeader, sc.SessionToken)
	} else {
		signed.Del(securityTokenHeader)
	}
	signed.Del(authorizationHeader)

	payloadHash := hashPayload(body)

	// Create canonical request
	canonicalHeaders, signedHeaders := buildCanonicalHeaders(signed)
	canonicalRequest := buildCanonicalRequest(method, path, canonicalHeaders, signedHeaders, payloadHash)

	// Create string to sign
	credentialScope := buildCredentialScope(sc)
	stringToSign := buildStringToSign(canonicalRequest, amzDate, credentialScope)

	// Calculate signature
	signature := calculateSignature(sc, stringToSign)

	signed.Set(authorizationHeader, buildAuthorizationHeader(sc, signature, credentialScope, signedHeaders))

	if s.debug {
		s.logger.Debug("signed upstream request",
			"method", method,
			"host", host,
			"path", path,
			"canonical_request", redactToken(canonicalRequest, sc.SessionToken),
			"string_to_sign", stringToSign,
			"signed_headers", signedHeaders,
		)
	}

	return signed, nil
}

// SignRequest signs req for the given body and replaces its headers with the
// signed set. body must be the exact bytes req will transmit.
func (s *Signer) SignRequest(req *http.Request, body []byte, sc SigningContext) error {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	path := req.URL.EscapedPath()
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	signed, err := s.Sign(sc, req.Method, host, path, req.Header, body)
	if err != nil {
		return err
	}

	req.Header = signed
	req.Host = host
	return nil
}

// redactToken hides the session token carried in the canonical header block
func redactToken(canonicalRequest, token string) string {
	if token == "" {
		return canonicalRequest
	}
	return strings.ReplaceAll(canonicalRequest, token, "[REDACTED]")
}

func validateSigningInput(sc SigningContext, method, host, path string, headers http.Header) error {
	switch {
	case method == "":
		return signingErrorf("empty method")
	case host == "":
		return signingErrorf("empty host")
	case path != "" && !strings.HasPrefix(path, "/"):
		return signingErrorf("path %q is not absolute", path)
	case sc.AccessKeyID == "" || sc.SecretAccessKey == "":
		return signingErrorf("missing credentials")
	case sc.Region == "":
		return signingErrorf("missing region")
	case sc.Time.IsZero():
		return signingErrorf("missing signing time")
	}

	// A raw newline would corrupt the canonical header block
	for k, values := range headers {
		for _, v := range values {
			if strings.ContainsAny(v, "\r\n") {
				return signingErrorf("header %s contains a line break", k)
			}
		}
	}
	return nil
}

func signingErrorf(format string, args ...interface{}) error {
	return types.NewSigningError(fmt.Errorf(format, args...))
}

// hashPayload calculates SHA256 hash of the request payload
func hashPayload(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// buildCanonicalRequest creates the canonical request string
func buildCanonicalRequest(method, path, canonicalHeaders, signedHeaders, payloadHash string) string {
	uri, rawQuery, _ := strings.Cut(path, "?")
	if uri == "" {
		uri = "/"
	}

	var queryString string
	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err == nil {
			queryString = buildCanonicalQueryString(values)
		}
	}

	return strings.Join([]string{
		method,
		uriEncode(uri, false),
		queryString,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
}

// buildCanonicalQueryString creates the canonical query string
func buildCanonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		encodedKey := uriEncode(k, true)
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, encodedKey+"="+uriEncode(v, true))
		}
	}

	return strings.Join(parts, "&")
}

// buildCanonicalHeaders creates canonical headers and signed headers list
func buildCanonicalHeaders(headers http.Header) (canonical, signed string) {
	lowered := make(map[string][]string, len(headers))
	for k, v := range headers {
		lowerKey := strings.ToLower(k)
		if _, skip := unsignedHeaders[lowerKey]; skip {
			continue
		}
		lowered[lowerKey] = append(lowered[lowerKey], v...)
	}

	keys := make([]string, 0, len(lowered))
	for k := range lowered {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := make([]string, 0, len(lowered[k]))
		for _, v := range lowered[k] {
			values = append(values, stripExcessSpaces(v))
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strings.Join(values, ","))
		b.WriteByte('\n')
	}

	return b.String(), strings.Join(keys, ";")
}

// buildCredentialScope creates the credential scope string
func buildCredentialScope(sc SigningContext) string {
	return strings.Join([]string{
		sc.Time.Format(shortTimeFormat),
		sc.Region,
		serviceName,
		requestType,
	}, "/")
}

// buildStringToSign creates the string to sign
func buildStringToSign(canonicalRequest, amzDate, credentialScope string) string {
	hash := sha256.Sum256([]byte(canonicalRequest))

	return strings.Join([]string{
		algorithm,
		amzDate,
		credentialScope,
		hex.EncodeToString(hash[:]),
	}, "\n")
}

// deriveSigningKey runs the SigV4 key derivation chain for the context's date and region
func deriveSigningKey(sc SigningContext) []byte {
	kSecret := []byte("AWS4" + sc.SecretAccessKey)
	kDate := hmacSHA256(kSecret, []byte(sc.Time.Format(shortTimeFormat)))
	kRegion := hmacSHA256(kDate, []byte(sc.Region))
	kService := hmacSHA256(kRegion, []byte(serviceName))
	return hmacSHA256(kService, []byte(requestType))
}

// calculateSignature computes the AWS Signature V4 signature
func calculateSignature(sc SigningContext, stringToSign string) string {
	return hex.EncodeToString(hmacSHA256(deriveSigningKey(sc), []byte(stringToSign)))
}

// buildAuthorizationHeader creates the Authorization header value
func buildAuthorizationHeader(sc SigningContext, signature, credentialScope, signedHeaders string) string {
	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm,
		sc.AccessKeyID,
		credentialScope,
		signedHeaders,
		signature,
	)
}

// hmacSHA256 computes HMAC-SHA256
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// stripExcessSpaces trims a header value and collapses inner runs of spaces
func stripExcessSpaces(v string) string {
	v = strings.Trim(v, " ")
	if !strings.Contains(v, "  ") {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))
	prevSpace := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// uriEncode encodes a URI component according to AWS requirements
func uriEncode(s string, encodeSlash bool) string {
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c, encodeSlash) {
			fmt.Fprintf(&buf, "%%%02X", c)
		} else {
			buf.WriteByte(c)
		}
	}
	return buf.String()
}

// shouldEscape determines if a character should be percent-encoded
func shouldEscape(c byte, encodeSlash bool) bool {
	// Unreserved characters (RFC 3986)
	if 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' {
		return false
	}
	switch c {
	case '-', '_', '.', '~':
		return false
	case '/':
		return encodeSlash
	}
	return true
}
