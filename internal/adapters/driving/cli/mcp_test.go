package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMCPServe_InvalidPort(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("mcp", "serve", "--port", "70000")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port 70000")
}

func TestMCPServe_RequiresSearch(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	searchService = nil

	_, err := execute("mcp", "serve")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "search service not configured")
}

func TestMCPPorts_OptionalServices(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	distillService, memoryService, graphService = nil, nil, nil

	ports, err := mcpPorts()

	require.NoError(t, err)
	assert.NoError(t, ports.Validate())
	assert.Nil(t, ports.Graph)
	assert.NotNil(t, ports.Ingest)
}

func TestMCPPorts_UsesConfiguredSearchOptions(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	settings := settingsService.(*mockSettingsService)
	settings.settings.Search.K = 25
	settings.settings.Search.VectorWeight = 0.8
	settings.settings.Search.TextWeight = 0.2

	ports, err := mcpPorts()

	require.NoError(t, err)
	require.NotNil(t, ports.SearchDefaults)
	assert.Equal(t, 25, ports.SearchDefaults.K)
	assert.InDelta(t, 0.8, ports.SearchDefaults.VectorWeight, 1e-9)
	assert.InDelta(t, 0.2, ports.SearchDefaults.TextWeight, 1e-9)
}

func TestMCPServeCmd_Flags(t *testing.T) {
	assert.Equal(t, "127.0.0.1", mcpServeCmd.Flags().Lookup("host").DefValue)
	assert.Equal(t, "0", mcpServeCmd.Flags().Lookup("port").DefValue)
}
