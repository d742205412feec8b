package relay

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/relay/armrelay"

	"github.com/julienstroheker/RelayGate/internal/logging"
)

// Manager provisions hybrid connections through Azure Resource Manager
type Manager struct {
	client            *armrelay.HybridConnectionsClient
	resourceGroupName string
	namespaceName     string
	logger            *logging.Logger
}

// ManagerOptions contains configuration for the Relay Manager
type ManagerOptions struct {
	// SubscriptionID is the Azure subscription ID
	SubscriptionID string

	// ResourceGroupName is the name of the resource group containing the Relay namespace
	ResourceGroupName string

	// NamespaceName is the name of the Azure Relay namespace
	NamespaceName string

	// Credential is the Azure credential to use (optional, defaults to DefaultAzureCredential)
	Credential azcore.TokenCredential

	// ClientOptions customizes the ARM client (optional)
	ClientOptions *arm.ClientOptions

	Logger *logging.Logger
}

// NewManager creates a new Azure Relay Manager
func NewManager(opts *ManagerOptions) (*Manager, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if opts.ResourceGroupName == "" {
		return nil, fmt.Errorf("resource group name is required")
	}
	if opts.NamespaceName == "" {
		return nil, fmt.Errorf("namespace name is required")
	}

	credential := opts.Credential
	if credential == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create default credential: %w", err)
		}
		credential = cred
	}

	hcClient, err := armrelay.NewHybridConnectionsClient(opts.SubscriptionID, credential, opts.ClientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create hybrid connections client: %w", err)
	}

	return &Manager{
		client:            hcClient,
		resourceGroupName: opts.ResourceGroupName,
		namespaceName:     opts.NamespaceName,
		logger:            opts.Logger,
	}, nil
}

// EnsureHybridConnection creates the hybrid connection, or updates it if it
// already exists. Client authorization stays required so that only holders of
// a SAS key or an authorized identity can send to it.
func (m *Manager) EnsureHybridConnection(ctx context.Context, name string) error {
	props := armrelay.HybridConnection{
		Properties: &armrelay.HybridConnectionProperties{
			RequiresClientAuthorization: ptr(true),
			UserMetadata:                ptr("managed by relaygate"),
		},
	}

	resp, err := m.client.CreateOrUpdate(ctx, m.resourceGroupName, m.namespaceName, name, props, nil)
	if err != nil {
		return fmt.Errorf("failed to ensure hybrid connection %s: %w", name, err)
	}

	if m.logger != nil {
		fields := []logging.Field{
			logging.String("namespace", m.namespaceName),
			logging.String("hybrid_connection", name),
		}
		if resp.ID != nil {
			fields = append(fields, logging.String("resource_id", *resp.ID))
		}
		m.logger.Info("Hybrid connection ready", fields...)
	}
	return nil
}

// DeleteHybridConnection deletes a hybrid connection from the namespace
func (m *Manager) DeleteHybridConnection(ctx context.Context, name string) error {
	_, err := m.client.Delete(ctx, m.resourceGroupName, m.namespaceName, name, nil)
	if err != nil {
		return fmt.Errorf("failed to delete hybrid connection %s: %w", name, err)
	}
	return nil
}

// ptr is a helper function to get a pointer to a value
func ptr[T any](v T) *T {
	return &v
}
