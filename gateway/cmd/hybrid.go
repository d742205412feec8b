package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/julienstroheker/RelayGate/gateway/proxy"
	azrelay "github.com/julienstroheker/RelayGate/internal/azure/relay"
	"github.com/julienstroheker/RelayGate/internal/config"
	"github.com/julienstroheker/RelayGate/internal/logging"
)

// hybridEndpoint builds the relay endpoint, authorizing with a SAS key when
// one is configured and with an Entra ID token otherwise
func hybridEndpoint(c *config.Config) (*azrelay.Endpoint, error) {
	hc := c.HybridConnection

	var tokens azrelay.TokenSource
	if hc.KeyName != "" {
		tokens = &azrelay.SASTokenSource{
			Namespace:            hc.Namespace,
			HybridConnectionName: hc.Name,
			KeyName:              hc.KeyName,
			Key:                  hc.Key,
		}
	} else {
		provider, err := azrelay.NewTokenProvider(nil)
		if err != nil {
			return nil, err
		}
		tokens = provider
	}

	return &azrelay.Endpoint{
		Namespace: hc.Namespace,
		Name:      hc.Name,
		Tokens:    tokens,
	}, nil
}

// hybridTarget is the target reported for connections sent to the hybrid connection
func hybridTarget(c *config.Config) proxy.Target {
	return proxy.Target{Host: azrelay.NamespaceHost(c.HybridConnection.Namespace), Port: 443}
}

func newHybridSender(c *config.Config, log *logging.Logger) (*azrelay.Sender, error) {
	endpoint, err := hybridEndpoint(c)
	if err != nil {
		return nil, err
	}
	return azrelay.NewSender(endpoint, log)
}

func newHybridListener(ctx context.Context, c *config.Config, log *logging.Logger) (*azrelay.Listener, error) {
	endpoint, err := hybridEndpoint(c)
	if err != nil {
		return nil, err
	}
	return azrelay.Listen(ctx, &azrelay.ListenerOptions{
		Endpoint: endpoint,
		Backlog:  c.Backlog,
		Logger:   log,
	})
}

// provisionHybridConnection creates or updates the hybrid connection through ARM
func provisionHybridConnection(ctx context.Context, c *config.Config, log *logging.Logger) error {
	hc := c.HybridConnection
	if hc.SubscriptionID == "" || hc.ResourceGroup == "" {
		return fmt.Errorf("provisioning requires RELAYGATE_AZURE_SUBSCRIPTION_ID and RELAYGATE_AZURE_RESOURCE_GROUP")
	}

	// ARM wants the bare namespace name, not its host
	namespace, _, _ := strings.Cut(azrelay.NamespaceHost(hc.Namespace), ".")

	manager, err := azrelay.NewManager(&azrelay.ManagerOptions{
		SubscriptionID:    hc.SubscriptionID,
		ResourceGroupName: hc.ResourceGroup,
		NamespaceName:     namespace,
		Logger:            log,
	})
	if err != nil {
		return err
	}
	return manager.EnsureHybridConnection(ctx, hc.Name)
}
