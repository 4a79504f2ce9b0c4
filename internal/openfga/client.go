package openfga

import (
	"context"
	"fmt"
	"log/slog"

	"holylandtour/internal/config"

	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

const (
	RelationViewer   = "viewer"
	RelationExporter = "exporter"

	// DashboardObject is the single object admin permissions are granted on.
	DashboardObject = "dashboard:admin"
)

// Client checks and writes admin relationship tuples.
type Client struct {
	logger *slog.Logger
	fga    *client.OpenFgaClient
	config config.OpenFGAConfig
}

func NewClient(ctx context.Context, logger *slog.Logger, cfg config.OpenFGAConfig) (*Client, error) {
	if !cfg.Enabled {
		logger.Info("OpenFGA is disabled")
		return &Client{logger: logger, config: cfg}, nil
	}

	clientConfig := &client.ClientConfiguration{
		ApiUrl:               cfg.APIHost,
		StoreId:              cfg.StoreID,
		AuthorizationModelId: cfg.ModelID,
	}
	if cfg.APIToken != "" {
		clientConfig.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{
				ApiToken: cfg.APIToken,
			},
		}
	}

	fgaClient, err := client.NewSdkClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("openfga: failed to create client: %w", err)
	}

	c := &Client{logger: logger, fga: fgaClient, config: cfg}
	if err := c.verifyConnection(ctx); err != nil {
		return nil, fmt.Errorf("openfga: failed to verify connection: %w", err)
	}

	logger.Info("OpenFGA client initialized", "store_id", cfg.StoreID, "model_id", cfg.ModelID)
	return c, nil
}

func (c *Client) verifyConnection(ctx context.Context) error {
	response, err := c.fga.GetStore(ctx).Execute()
	if err != nil {
		return fmt.Errorf("failed to get store: %w", err)
	}
	if response.Id != c.config.StoreID {
		return fmt.Errorf("store ID mismatch: expected %s, got %s", c.config.StoreID, response.Id)
	}

	if c.config.ModelID == "" {
		return nil
	}
	modelResponse, err := c.fga.ReadAuthorizationModel(ctx).Execute()
	if err != nil {
		return fmt.Errorf("failed to read authorization model: %w", err)
	}
	if modelResponse.AuthorizationModel.Id != c.config.ModelID {
		c.logger.Warn("Authorization model ID mismatch",
			"expected", c.config.ModelID,
			"actual", modelResponse.AuthorizationModel.Id)
	}
	return nil
}

func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.fga != nil
}

// Check reports whether user:<userID> has relation on object.
func (c *Client) Check(ctx context.Context, userID, relation, object string) (bool, error) {
	data, err := c.fga.Check(ctx).Body(client.ClientCheckRequest{
		User:     "user:" + userID,
		Relation: relation,
		Object:   object,
	}).Execute()
	if err != nil {
		c.logger.ErrorContext(ctx, "OpenFGA check failed",
			"user", userID,
			"relation", relation,
			"object", object,
			"error", err)
		return false, fmt.Errorf("openfga: check failed: %w", err)
	}

	allowed := data.GetAllowed()
	c.logger.DebugContext(ctx, "OpenFGA check completed",
		"user", userID,
		"relation", relation,
		"object", object,
		"allowed", allowed)
	return allowed, nil
}

// Grant writes user:<userID> relation object. It is a no-op when disabled.
func (c *Client) Grant(ctx context.Context, userID, relation, object string) error {
	if !c.IsEnabled() {
		return nil
	}

	if _, err := c.fga.Write(ctx).Body(client.ClientWriteRequest{
		Writes: []client.ClientTupleKey{{
			User:     "user:" + userID,
			Relation: relation,
			Object:   object,
		}},
	}).Execute(); err != nil {
		return fmt.Errorf("openfga: failed to write tuple (user=%s, relation=%s): %w", userID, relation, err)
	}

	c.logger.DebugContext(ctx, "OpenFGA tuple written", "user", userID, "relation", relation, "object", object)
	return nil
}
