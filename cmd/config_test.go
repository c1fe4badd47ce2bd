package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/tramites-sync/internal/config"
)

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "postgres://sync:xxxxx@db:5432/tramites", maskURL("postgres://sync:secret@db:5432/tramites"))
	assert.Equal(t, "https://hooks.example.com/x?redacted", maskURL("https://hooks.example.com/x?token=abc"))
	assert.Equal(t, "data/runs.db", maskURL("data/runs.db"))
	assert.Equal(t, "", maskURL(""))
}

func TestWriteConfig(t *testing.T) {
	c := &config.Config{}
	c.Portal.BaseURL = "https://portal.example"
	c.Portal.PageSize = 30
	c.Store.Driver = "postgres"
	c.Store.DatabaseURL = "postgres://sync:secret@db/tramites"

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, c))
	assert.NotContains(t, buf.String(), "secret")

	var back config.Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, "https://portal.example", back.Portal.BaseURL)
	assert.Equal(t, 30, back.Portal.PageSize)
	assert.Equal(t, "postgres", back.Store.Driver)

	// The caller's config is untouched.
	assert.Equal(t, "postgres://sync:secret@db/tramites", c.Store.DatabaseURL)
}
