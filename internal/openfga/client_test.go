package openfga

import (
	"context"
	"encoding/json"
	"testing"

	"holylandtour/internal/config"
	"holylandtour/internal/logger"

	"github.com/openfga/go-sdk/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Disabled(t *testing.T) {
	c, err := NewClient(context.Background(), logger.Discard(), config.OpenFGAConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Grant(context.Background(), "admin-1", RelationViewer, DashboardObject))
}

func TestAuthorizationModel(t *testing.T) {
	var body client.ClientWriteAuthorizationModelRequest
	require.NoError(t, json.Unmarshal(authorizationModel, &body))
	assert.Equal(t, "1.1", body.SchemaVersion)

	types := map[string]bool{}
	for _, td := range body.TypeDefinitions {
		types[td.Type] = true
		if td.Type == "dashboard" {
			require.NotNil(t, td.Relations)
			assert.Contains(t, *td.Relations, RelationViewer)
			assert.Contains(t, *td.Relations, RelationExporter)
		}
	}
	assert.True(t, types["user"])
	assert.True(t, types["dashboard"])
}
