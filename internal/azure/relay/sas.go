package relay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultDomain is appended to namespaces given without one
	DefaultDomain = "servicebus.windows.net"

	// DefaultSASExpiry is how long generated SAS tokens stay valid
	DefaultSASExpiry = time.Hour
)

// NamespaceHost returns the fully qualified namespace host, adding
// DefaultDomain to a bare namespace name
func NamespaceHost(namespace string) string {
	namespace = strings.TrimSuffix(strings.TrimSpace(namespace), "/")
	if strings.Contains(namespace, ".") {
		return namespace
	}
	return namespace + "." + DefaultDomain
}

// ResourceURI returns the URI a SAS token for a hybrid connection is scoped to
func ResourceURI(namespace, hybridConnectionName string) string {
	return fmt.Sprintf("https://%s/%s", NamespaceHost(namespace), hybridConnectionName)
}

// GenerateSASToken signs a Shared Access Signature for the hybrid connection
// with the named shared access key
func GenerateSASToken(namespace, hybridConnectionName, keyName, key string, expiry time.Duration) (string, error) {
	keyName = strings.TrimSpace(keyName)
	key = strings.TrimSpace(key)
	if keyName == "" {
		return "", errors.New("key name is required")
	}
	if key == "" {
		return "", errors.New("key is required")
	}
	if expiry <= 0 {
		expiry = DefaultSASExpiry
	}

	uri := url.QueryEscape(ResourceURI(namespace, hybridConnectionName))
	expiresAt := time.Now().Add(expiry).Unix()

	// the shared access key is used as-is, not base64 decoded
	h := hmac.New(sha256.New, []byte(key))
	fmt.Fprintf(h, "%s\n%d", uri, expiresAt)
	signature := base64.StdEncoding.EncodeToString(h.Sum(nil))

	return fmt.Sprintf("SharedAccessSignature sr=%s&sig=%s&se=%d&skn=%s",
		uri,
		url.QueryEscape(signature),
		expiresAt,
		url.QueryEscape(keyName),
	), nil
}

// TokenSource supplies the token used to authorize hybrid connection requests
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// SASTokenSource signs a fresh SAS token for every request
type SASTokenSource struct {
	Namespace            string
	HybridConnectionName string
	KeyName              string
	Key                  string
	Expiry               time.Duration
}

// Token returns a newly signed SAS token
func (s *SASTokenSource) Token(_ context.Context) (string, error) {
	return GenerateSASToken(s.Namespace, s.HybridConnectionName, s.KeyName, s.Key, s.Expiry)
}

// StaticTokenSource always returns the same token
type StaticTokenSource string

// Token returns the token
func (s StaticTokenSource) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", errors.New("token is empty")
	}
	return string(s), nil
}

// isSASToken reports whether token is a Shared Access Signature rather than an Entra ID token
func isSASToken(token string) bool {
	return strings.HasPrefix(token, "SharedAccessSignature ")
}
