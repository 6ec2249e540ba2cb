// Package sigv implements the signed-request scheme used between relays.
// A request is bound to its sender by an Ed25519 signature over a
// canonical string of five components: the method, the path, the target
// host, the request date and a digest of the raw body. The verifier
// rebuilds the exact same string from the inbound wire data, so any
// change to method, path, host, timing or body invalidates the signature.
package sigv

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tezrelay/pkg/apierr"
	"tezrelay/pkg/identity"
)

// MaxSkew is how far an inbound Date header may drift from local time.
const MaxSkew = 5 * time.Minute

const componentList = `("@method" "@path" "host" "date" "digest")`

// Digest computes the Digest header value for a raw body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

// CanonicalString renders the signing string. Component order is fixed;
// each line is "<token>: <value>" and lines are joined by single newlines
// with no trailing newline.
func CanonicalString(method, path, host, date, digest string) string {
	return strings.Join([]string{
		"@method: " + strings.ToUpper(method),
		"@path: " + path,
		"host: " + host,
		"date: " + date,
		"digest: " + digest,
	}, "\n")
}

// Sign stamps req with Date, Digest, Signature and Signature-Input
// headers for the given raw body. The request URL must already carry the
// target host and path.
func Sign(id *identity.Identity, req *http.Request, body []byte, now time.Time) {
	date := now.UTC().Format(time.RFC3339)
	digest := Digest(body)
	canonical := CanonicalString(req.Method, req.URL.Path, req.URL.Host, date, digest)
	sig := base64.StdEncoding.EncodeToString(id.Sign([]byte(canonical)))

	req.Header.Set("Date", date)
	req.Header.Set("Digest", digest)
	req.Header.Set("Signature", sig)
	req.Header.Set("Signature-Input", fmt.Sprintf(`sig1=%s;keyId=%q;alg="ed25519"`, componentList, id.ServerID))
}

// KeyLookup resolves a signature keyId to the peer's public key. A
// lookup miss must return an apierr with CodeUnknownPeer.
type KeyLookup func(ctx context.Context, keyID string) (ed25519.PublicKey, error)

// Verify checks an inbound request against its signature headers using
// the already-read raw body. It returns the sender's keyId on success.
// The digest is recomputed from the raw bytes, never from a parsed form.
func Verify(ctx context.Context, r *http.Request, body []byte, now time.Time, lookup KeyLookup) (string, error) {
	date := r.Header.Get("Date")
	digest := r.Header.Get("Digest")
	sig := r.Header.Get("Signature")
	input := r.Header.Get("Signature-Input")
	if date == "" || digest == "" || sig == "" || input == "" {
		return "", apierr.New(apierr.CodeMissingSignature, "request is not signed")
	}

	if Digest(body) != digest {
		return "", apierr.New(apierr.CodeBodyModified, "digest does not match request body")
	}

	ts, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return "", apierr.New(apierr.CodeInvalidSignature, "unparseable date header")
	}
	if d := now.Sub(ts); d > MaxSkew || d < -MaxSkew {
		return "", apierr.New(apierr.CodeInvalidSignature, "date outside allowed skew")
	}

	keyID, err := parseKeyID(input)
	if err != nil {
		return "", apierr.New(apierr.CodeInvalidSignature, "malformed signature-input header")
	}
	pub, err := lookup(ctx, keyID)
	if err != nil {
		return "", err
	}

	rawSig, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return "", apierr.New(apierr.CodeInvalidSignature, "signature is not valid base64")
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	canonical := CanonicalString(r.Method, r.URL.Path, host, date, digest)
	if !ed25519.Verify(pub, []byte(canonical), rawSig) {
		return "", apierr.New(apierr.CodeInvalidSignature, "signature verification failed")
	}
	return keyID, nil
}

// parseKeyID pulls the keyId parameter out of a Signature-Input value,
// e.g. `sig1=("@method" ...);keyId="abc123";alg="ed25519"`.
func parseKeyID(input string) (string, error) {
	for _, part := range strings.Split(input, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "keyId=") {
			continue
		}
		v := strings.TrimPrefix(part, "keyId=")
		v = strings.Trim(v, `"`)
		if v == "" {
			break
		}
		return v, nil
	}
	return "", fmt.Errorf("keyId parameter missing")
}
