package openfga

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"holylandtour/internal/config"

	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// authorizationModel grants exporter on dashboard:admin and implies viewer from it.
//
//go:embed model.json
var authorizationModel []byte

// NewManagementClient connects without verifying the store, so it can be used
// before a store or model exists.
func NewManagementClient(logger *slog.Logger, cfg config.OpenFGAConfig) (*Client, error) {
	clientConfig := &client.ClientConfiguration{
		ApiUrl:  cfg.APIHost,
		StoreId: cfg.StoreID,
	}
	if cfg.APIToken != "" {
		clientConfig.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{ApiToken: cfg.APIToken},
		}
	}

	fgaClient, err := client.NewSdkClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("openfga: failed to create client: %w", err)
	}
	cfg.Enabled = true
	return &Client{logger: logger, fga: fgaClient, config: cfg}, nil
}

func (c *Client) CreateStore(ctx context.Context, name string) (string, error) {
	resp, err := c.fga.CreateStore(ctx).Body(client.ClientCreateStoreRequest{Name: name}).Execute()
	if err != nil {
		return "", fmt.Errorf("openfga: failed to create store %q: %w", name, err)
	}
	return resp.Id, nil
}

// WriteAuthorizationModel uploads the embedded model to the configured store
// and returns the new model id.
func (c *Client) WriteAuthorizationModel(ctx context.Context) (string, error) {
	var body client.ClientWriteAuthorizationModelRequest
	if err := json.Unmarshal(authorizationModel, &body); err != nil {
		return "", fmt.Errorf("openfga: invalid embedded model: %w", err)
	}

	resp, err := c.fga.WriteAuthorizationModel(ctx).Body(body).Execute()
	if err != nil {
		return "", fmt.Errorf("openfga: failed to write authorization model: %w", err)
	}
	return resp.AuthorizationModelId, nil
}
