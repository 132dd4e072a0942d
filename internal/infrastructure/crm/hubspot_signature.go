package crm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// Webhook signature headers
const (
	HeaderSignature         = "X-HubSpot-Signature"
	HeaderSignatureVersion  = "X-HubSpot-Signature-Version"
	HeaderSignatureV3       = "X-HubSpot-Signature-v3"
	HeaderRequestTimestamp  = "X-HubSpot-Request-Timestamp"
	DefaultSignatureMaxSkew = 5 * time.Minute
)

// SignatureRequest carries what is needed to check a webhook signature
type SignatureRequest struct {
	Method    string
	URI       string
	Body      []byte
	Signature string
	Version   string
	// SignatureV3 and Timestamp are set when HubSpot sends a v3 signature
	SignatureV3 string
	Timestamp   string
}

// SignatureVerifier checks HubSpot webhook signatures
type SignatureVerifier struct {
	clientSecret string
	maxSkew      time.Duration
	now          func() time.Time
}

// NewSignatureVerifier creates a verifier for the app's client secret
func NewSignatureVerifier(clientSecret string, maxSkew time.Duration) *SignatureVerifier {
	if maxSkew <= 0 {
		maxSkew = DefaultSignatureMaxSkew
	}
	return &SignatureVerifier{clientSecret: clientSecret, maxSkew: maxSkew, now: time.Now}
}

// Verify accepts a v3 signature when present, else a v1 or v2 signature.
func (v *SignatureVerifier) Verify(req SignatureRequest) error {
	if v.clientSecret == "" {
		return integration.ErrInvalidSignature
	}
	if req.SignatureV3 != "" {
		return v.verifyV3(req)
	}
	if req.Signature == "" {
		return integration.ErrInvalidSignature
	}

	var source string
	switch req.Version {
	case "", "v1":
		source = v.clientSecret + string(req.Body)
	case "v2":
		source = v.clientSecret + req.Method + req.URI + string(req.Body)
	default:
		return integration.ErrInvalidSignature
	}

	sum := sha256.Sum256([]byte(source))
	expected := hex.EncodeToString(sum[:])
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(req.Signature))) {
		return integration.ErrInvalidSignature
	}
	return nil
}

// verifyV3 checks HMAC-SHA256(method + uri + body + timestamp) and the timestamp age
func (v *SignatureVerifier) verifyV3(req SignatureRequest) error {
	ms, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return integration.ErrInvalidSignature
	}
	sent := time.UnixMilli(ms)
	if d := v.now().Sub(sent); d > v.maxSkew || d < -v.maxSkew {
		return integration.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(v.clientSecret))
	mac.Write([]byte(req.Method + req.URI + string(req.Body) + req.Timestamp))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(req.SignatureV3)) {
		return integration.ErrInvalidSignature
	}
	return nil
}
