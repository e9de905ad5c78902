// Package auth implements AWS Signature Version 4 request verification and
// the credential store it authenticates against.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	algorithm          = "AWS4-HMAC-SHA256"
	unsignedPayload    = "UNSIGNED-PAYLOAD"
	amzDateLayout      = "20060102T150405Z"
	defaultClockSkew   = 15 * time.Minute
	credentialSegments = 5
)

// AuthError is a typed authentication failure. Its Code names one of the
// kinds in the auth error table; the middleware maps it to an S3 code and
// HTTP status.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Named auth failure kinds, matching the auth error table exactly.
var (
	ErrMissingAuthorizationHeader  = &AuthError{Code: "MissingAuthorizationHeader", Message: "Request is missing the Authorization header"}
	ErrInvalidAuthorizationHeader  = &AuthError{Code: "InvalidAuthorizationHeader", Message: "The Authorization header is malformed"}
	ErrMissingCredential           = &AuthError{Code: "MissingCredential", Message: "The Authorization header is missing the Credential field"}
	ErrInvalidCredentialFormat     = &AuthError{Code: "InvalidCredentialFormat", Message: "The Credential field is not in the expected AK/date/region/service/aws4_request form"}
	ErrUnknownAccessKey            = &AuthError{Code: "UnknownAccessKey", Message: "The access key supplied is not known to this server"}
	ErrSignatureVerificationFailed = &AuthError{Code: "SignatureVerificationFailed", Message: "The computed signature does not match the one provided"}
	ErrInvalidTimestamp            = &AuthError{Code: "InvalidTimestamp", Message: "The x-amz-date header could not be parsed"}
	ErrRequestTimeTooSkewed        = &AuthError{Code: "RequestTimeTooSkewed", Message: "The difference between the request time and the server's time is too large"}
)

// SigV4Verifier verifies the Authorization header of incoming requests
// against a credential store, per §4.2: canonical request construction,
// derived-key HMAC chain, constant-time signature comparison.
type SigV4Verifier struct {
	store  *CredentialStore
	region string

	// clockSkewEnabled toggles the ±clockSkewTolerance window on x-amz-date.
	// The reference this core was distilled from does not enforce skew;
	// Shoal enables it by default as an allowed extension (§9). The config
	// file sets only the tolerance; the check can be disabled through the
	// WithClockSkew option so the byte-exact seed scenarios can still be run
	// without it.
	clockSkewEnabled   bool
	clockSkewTolerance time.Duration
}

// VerifierOption configures a SigV4Verifier.
type VerifierOption func(*SigV4Verifier)

// WithClockSkew enables or disables the clock-skew check and sets its
// tolerance window.
func WithClockSkew(enabled bool, tolerance time.Duration) VerifierOption {
	return func(v *SigV4Verifier) {
		v.clockSkewEnabled = enabled
		v.clockSkewTolerance = tolerance
	}
}

// NewSigV4Verifier creates a verifier bound to the given credential store
// and region.
func NewSigV4Verifier(store *CredentialStore, region string, opts ...VerifierOption) *SigV4Verifier {
	v := &SigV4Verifier{
		store:              store,
		region:              region,
		clockSkewEnabled:    true,
		clockSkewTolerance:  defaultClockSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// parsedAuthorization is the decomposed Authorization header.
type parsedAuthorization struct {
	accessKey string
	dateStamp string
	region    string
	signature string
}

// parseAuthorizationHeader strips the leading algorithm token and parses
// the remaining comma-space-separated Key=Value fields, per §4.2.
func parseAuthorizationHeader(header string) (*parsedAuthorization, *AuthError) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, algorithm) {
		return nil, ErrInvalidAuthorizationHeader
	}
	rest := strings.TrimSpace(strings.TrimPrefix(header, algorithm))
	if rest == "" {
		return nil, ErrInvalidAuthorizationHeader
	}

	fields := make(map[string]string)
	for _, part := range strings.Split(rest, ", ") {
		idx := strings.IndexByte(part, '=')
		if idx < 0 {
			continue
		}
		fields[strings.TrimSpace(part[:idx])] = part[idx+1:]
	}

	credential, ok := fields["Credential"]
	if !ok || credential == "" {
		return nil, ErrMissingCredential
	}
	if _, ok := fields["SignedHeaders"]; !ok {
		return nil, ErrInvalidAuthorizationHeader
	}
	signature, ok := fields["Signature"]
	if !ok || signature == "" {
		return nil, ErrInvalidAuthorizationHeader
	}

	segs := strings.Split(credential, "/")
	if len(segs) != credentialSegments {
		return nil, ErrInvalidCredentialFormat
	}

	return &parsedAuthorization{
		accessKey: segs[0],
		dateStamp: segs[1],
		region:    segs[2],
		signature: signature,
	}, nil
}

// headerMap builds a lowercase-keyed header multimap from the request,
// including Host (which net/http removes from r.Header into r.Host) and
// excluding Authorization, which carries the signature and so cannot be part
// of what is signed. Multi-valued headers are joined by commas, matching
// AWS's canonicalization.
func headerMap(r *http.Request) map[string]string {
	m := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		m[lower] = strings.Join(values, ",")
	}
	if r.Host != "" {
		m["host"] = r.Host
	}
	return m
}

// canonicalQueryString implements §4.2's CanonicalQueryString rule: split on
// '&', split each pair on the first '=' (missing value becomes empty), sort
// by key, rejoin with '&'. No re-encoding is performed.
func canonicalQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	type kv struct{ key, value string }
	rawPairs := strings.Split(rawQuery, "&")
	pairs := make([]kv, 0, len(rawPairs))
	for _, p := range rawPairs {
		if p == "" {
			continue
		}
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			pairs = append(pairs, kv{p[:idx], p[idx+1:]})
		} else {
			pairs = append(pairs, kv{p, ""})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	joined := make([]string, len(pairs))
	for i, p := range pairs {
		joined[i] = p.key + "=" + p.value
	}
	return strings.Join(joined, "&")
}

// canonicalHeaders implements §4.2's CanonicalHeaders/SignedHeaders rules.
// SignedHeaders is every header present on the request except Authorization,
// not a client-declared subset (the reference's get_signed_headers behaves
// the same way).
func canonicalHeaders(headers map[string]string) (canonical string, signed string) {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(headers[name]))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

// canonicalURI implements §4.2's CanonicalURI rule: the path verbatim, or
// "/" if empty. This core does not re-encode — an explicit, known divergence
// from strict AWS double-encoding (§9).
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// buildCanonicalRequest assembles the exact byte sequence defined in §4.2.
func buildCanonicalRequest(method, path, rawQuery string, headers map[string]string, payloadHash string) string {
	canonicalHdrs, signedHeaders := canonicalHeaders(headers)
	return strings.Join([]string{
		method,
		canonicalURI(path),
		canonicalQueryString(rawQuery),
		canonicalHdrs,
		signedHeaders,
		payloadHash,
	}, "\n")
}

// buildStringToSign assembles the SigV4 string-to-sign.
func buildStringToSign(amzDate, dateStamp, region, canonicalRequest string) string {
	sum := sha256.Sum256([]byte(canonicalRequest))
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, region)
	return strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hex.EncodeToString(sum[:]),
	}, "\n")
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// deriveSigningKey walks the AWS4 HMAC cascade: secret -> date -> region ->
// service -> aws4_request.
func deriveSigningKey(secretKey, dateStamp, region string) []byte {
	kSecret := []byte("AWS4" + secretKey)
	kDate := hmacSHA256(kSecret, []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	return hmacSHA256(kService, []byte("aws4_request"))
}

// calculateSignature derives the signing key and HMACs the string-to-sign,
// returning the lowercase hex signature.
func calculateSignature(secretKey, dateStamp, region, stringToSign string) string {
	signingKey := deriveSigningKey(secretKey, dateStamp, region)
	sig := hmacSHA256(signingKey, []byte(stringToSign))
	return hex.EncodeToString(sig)
}

// VerifyRequest runs the full §4.2 verification pipeline against r's
// Authorization header and returns the authenticated credential. It does
// not consume or buffer r.Body.
func (v *SigV4Verifier) VerifyRequest(r *http.Request) (Credentials, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Credentials{}, ErrMissingAuthorizationHeader
	}

	parsed, authErr := parseAuthorizationHeader(header)
	if authErr != nil {
		return Credentials{}, authErr
	}

	cred, ok := v.store.Get(parsed.accessKey)
	if !ok {
		return Credentials{}, ErrUnknownAccessKey
	}

	amzDate := r.Header.Get("X-Amz-Date")
	if amzDate == "" {
		amzDate = r.Header.Get("Date")
	}
	requestTime, err := time.Parse(amzDateLayout, amzDate)
	if err != nil {
		return Credentials{}, ErrInvalidTimestamp
	}
	if v.clockSkewEnabled {
		skew := time.Since(requestTime)
		if skew < 0 {
			skew = -skew
		}
		if skew > v.clockSkewTolerance {
			return Credentials{}, ErrRequestTimeTooSkewed
		}
	}

	payloadHash := r.Header.Get("X-Amz-Content-Sha256")
	if payloadHash == "" {
		payloadHash = unsignedPayload
	}

	canonicalRequest := buildCanonicalRequest(r.Method, r.URL.Path, r.URL.RawQuery, headerMap(r), payloadHash)
	stringToSign := buildStringToSign(amzDate, parsed.dateStamp, parsed.region, canonicalRequest)
	expected := calculateSignature(cred.SecretKey, parsed.dateStamp, parsed.region, stringToSign)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(parsed.signature)) != 1 {
		return Credentials{}, ErrSignatureVerificationFailed
	}
	return cred, nil
}
