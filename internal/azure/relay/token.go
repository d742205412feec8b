package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	// RelayScope is the Entra ID scope for Azure Relay data plane access
	RelayScope = "https://relay.azure.net/.default"

	tokenRefreshMargin = 5 * time.Minute
)

// TokenProvider provides Entra ID tokens for Azure Relay.
// Tokens are cached and refreshed shortly before they expire.
type TokenProvider struct {
	credential azcore.TokenCredential
	scope      string
	mu         sync.RWMutex
	token      *azcore.AccessToken
}

// NewTokenProvider creates a token provider. A nil credential uses
// DefaultAzureCredential (managed identity, Azure CLI, environment, ...).
func NewTokenProvider(credential azcore.TokenCredential) (*TokenProvider, error) {
	if credential == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create credential: %w", err)
		}
		credential = cred
	}

	return &TokenProvider{
		credential: credential,
		scope:      RelayScope,
	}, nil
}

// Token returns a valid access token, using the cache when possible
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	if p.token != nil && time.Until(p.token.ExpiresOn) > tokenRefreshMargin {
		token := p.token.Token
		p.mu.RUnlock()
		return token, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// another caller may have refreshed while we waited for the lock
	if p.token != nil && time.Until(p.token.ExpiresOn) > tokenRefreshMargin {
		return p.token.Token, nil
	}

	tokenResponse, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{p.scope},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}

	p.token = &tokenResponse
	return tokenResponse.Token, nil
}
