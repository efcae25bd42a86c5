package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresAtLeastOneSource(t *testing.T) {
	c := &Config{TransportType: "stdio", MCPLanguage: "en"}
	err := c.Validate()
	require.Error(t, err)
}

func TestValidateRejectsDotDot(t *testing.T) {
	c := &Config{PromptRepoURL: "/tmp/../etc", TransportType: "stdio", MCPLanguage: "en"}
	require.Error(t, c.Validate())
}

func TestValidateRejectsRelativeLocalPath(t *testing.T) {
	c := &Config{PromptRepoURL: "relative/path", TransportType: "stdio", MCPLanguage: "en"}
	require.Error(t, c.Validate())
}

func TestValidateAcceptsGitURL(t *testing.T) {
	c := &Config{PromptRepoURL: "https://example.com/repo.git", TransportType: "stdio", MCPLanguage: "en"}
	require.NoError(t, c.Validate())
}

func TestValidateAcceptsAbsoluteLocalPath(t *testing.T) {
	c := &Config{PromptRepoURL: "/abs/path", TransportType: "stdio", MCPLanguage: "en"}
	require.NoError(t, c.Validate())
}

func TestValidateRejectsBadTransport(t *testing.T) {
	c := &Config{PromptRepoURL: "/abs/path", TransportType: "carrier-pigeon", MCPLanguage: "en"}
	require.Error(t, c.Validate())
}

func TestRepoURLsPrefersPluralOverSingular(t *testing.T) {
	c := &Config{PromptRepoURL: "/single", PromptRepoURLs: "/a, /b"}
	assert.Equal(t, []string{"/a", "/b"}, c.RepoURLs())
}

func TestGroupsParsesCommaSeparated(t *testing.T) {
	c := &Config{MCPGroups: "laravel, django ,"}
	assert.Equal(t, []string{"laravel", "django"}, c.Groups())
}
