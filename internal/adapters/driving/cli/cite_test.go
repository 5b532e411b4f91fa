package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

func TestCiteMake_WholeTarget(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "make", mockChunkID, "--retention", "durable", "-t", "paper", "-t", "q3")

	require.NoError(t, err)
	req := citationService.(*mockCitationService).lastMake
	assert.Equal(t, mockChunkID, req.TargetID)
	assert.Nil(t, req.Locator)
	assert.Nil(t, req.Source)
	assert.Equal(t, domain.RetentionDurable, req.RetentionClass)
	assert.Equal(t, []string{"paper", "q3"}, req.Tags)
	assert.Contains(t, out, "✓ cite-abc")
	assert.Contains(t, out, "/notes/a.md:0-11")
}

func TestCiteMake_Span(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("cite", "make", mockDocID, "--start", "5", "--locator", "tok", "--url", "https://example.com", "--page", "2")

	require.NoError(t, err)
	req := citationService.(*mockCitationService).lastMake
	require.NotNil(t, req.Locator)
	assert.Equal(t, domain.Span{Kind: domain.LocatorTok, Start: 5, End: -1}, *req.Locator)
	assert.Equal(t, &domain.CiteSource{URL: "https://example.com", Page: 2}, req.Source)
	assert.Equal(t, domain.RetentionStandard, req.RetentionClass)
}

func TestCiteMake_JSON(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "make", mockChunkID, "--json")

	require.NoError(t, err)
	var cite domain.Cite
	require.NoError(t, json.Unmarshal([]byte(out), &cite))
	assert.Equal(t, "cite-abc", cite.CiteID)
	assert.Equal(t, "hello world", cite.Quote)
}

func TestCiteMake_Error(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	citationService.(*mockCitationService).err = domain.ErrNotFound

	_, err := execute("cite", "make", "nope")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "cite failed")
}

func TestCiteVerify_AllValid(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "verify", "cite-1", "cite-2")

	require.NoError(t, err)
	assert.Contains(t, out, "✓ cite-1 valid")
	assert.Contains(t, out, "✓ cite-2 valid")
}

func TestCiteVerify_DriftFails(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	citationService.(*mockCitationService).verifications = map[string]*domain.Verification{
		"cite-2": {
			CiteID: "cite-2",
			Diagnostics: []domain.Diagnostic{
				{Code: domain.DiagContentMismatch, Message: "content at /notes/a.md changed"},
			},
		},
	}

	out, err := execute("cite", "verify", "cite-1", "cite-2")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 citations drifted")
	assert.Contains(t, out, "✗ cite-2 drifted")
	assert.Contains(t, out, "content_mismatch: content at /notes/a.md changed")
}

func TestCiteOpen(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "open", "cite-1")

	require.NoError(t, err)
	assert.Contains(t, out, "/notes/a.md")
	assert.Contains(t, out, "hello world!")
}

func TestCiteList_Filters(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	mock := citationService.(*mockCitationService)
	mock.summaries = []domain.CiteSummary{
		{CiteID: "cite-1", Type: domain.CiteDoc, Quote: "q1", RetentionClass: domain.RetentionPinned, CreatedAt: mockTime, Status: domain.CiteStatusValid},
		{CiteID: "cite-2", Type: domain.CiteChunk, Quote: "q2", RetentionClass: domain.RetentionStandard, CreatedAt: mockTime, Status: domain.CiteStatusDrifted},
	}

	out, err := execute("cite", "list", "--tag", "a", "--type", "doc,chunk", "--retention", "pinned", "--status", "valid", "--verify")

	require.NoError(t, err)
	f := mock.lastFilter
	assert.Equal(t, []string{"a"}, f.Tags)
	assert.Equal(t, []domain.CiteType{domain.CiteDoc, domain.CiteChunk}, f.Types)
	assert.Equal(t, []domain.RetentionClass{domain.RetentionPinned}, f.RetentionClasses)
	assert.Equal(t, domain.CiteStatusValid, f.Status)
	assert.True(t, f.WithStatus)
	assert.Contains(t, out, "✓ cite-1")
	assert.Contains(t, out, "✗ cite-2")
	assert.Contains(t, out, `"q2"`)
}

func TestCiteList_Empty(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No citations found.")
	assert.False(t, citationService.(*mockCitationService).lastFilter.WithStatus)
}

func TestCiteGC(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "gc", "--max-age", "48h", "--max-usage", "2", "--dry-run")

	require.NoError(t, err)
	policy := citationService.(*mockCitationService).lastPolicy
	assert.Equal(t, 48*time.Hour, policy.MaxAge)
	assert.Equal(t, 2, policy.MaxUsage)
	assert.True(t, policy.DryRun)
	assert.Contains(t, out, "Would remove 1 citation(s), kept 3.")
	assert.Contains(t, out, "cite-old")
}

func TestCiteGC_Removes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("cite", "gc")

	require.NoError(t, err)
	assert.False(t, citationService.(*mockCitationService).lastPolicy.DryRun)
	assert.Contains(t, out, "Removed 1 citation(s)")
}

func TestCiteCmds_NotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	citationService = nil

	for _, args := range [][]string{
		{"cite", "make", "x"},
		{"cite", "verify", "x"},
		{"cite", "open", "x"},
		{"cite", "list"},
		{"cite", "gc"},
	} {
		_, err := execute(args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "citation service not configured")
	}
}
