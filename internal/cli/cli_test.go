package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/model"
	"github.com/Life-of-Vibe-Coding/waifu-tutor/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  driver: sqlite
  sqlite:
    path: %s
storage:
  driver: local
  local:
    dir: %s
embedding:
  api_key: ""
  dimensions: 16
rerank:
  api_key: ""
llm:
  api_key: ""
`, filepath.Join(dir, "tutor.db"), filepath.Join(dir, "uploads"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIngestSearchAndDocs(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	notes := filepath.Join(dir, "optics.md")
	require.NoError(t, os.WriteFile(notes, []byte("Refraction bends light when it passes between media of different density."), 0o644))

	out, err := run(t, "-c", cfgPath, "ingest", notes)
	require.NoError(t, err, out)
	fields := strings.Fields(out)
	require.GreaterOrEqual(t, len(fields), 2)
	docID := fields[0]
	assert.Equal(t, "ready", fields[1])

	out, err = run(t, "-c", cfgPath, "search", "refraction", "--json")
	require.NoError(t, err, out)
	var res service.Retrieval
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Results)
	assert.Equal(t, docID, res.Results[0].DocID)

	out, err = run(t, "-c", cfgPath, "docs", "--json")
	require.NoError(t, err, out)
	var docs []model.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "optics.md", docs[0].Filename)

	out, err = run(t, "-c", cfgPath, "reindex", docID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "ready")
}

func TestIngestReportsUnsupportedFiles(t *testing.T) {
	cfgPath, dir := writeConfig(t)
	bad := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(bad, []byte("png"), 0o644))

	out, err := run(t, "-c", cfgPath, "ingest", bad)
	assert.Error(t, err)
	assert.Contains(t, out, "unsupported file extension")
}

func TestSearchRequiresQueryOrDoc(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := run(t, "-c", cfgPath, "search")
	assert.Error(t, err)
}

func TestChatStreamsOfflineReply(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	out, err := run(t, "-c", cfgPath, "chat", "what is entropy?")
	require.NoError(t, err, out)
	assert.Contains(t, out, "mood:")
	assert.Contains(t, out, "session:")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab...", truncateRunes("abcd", 2))
	assert.Equal(t, "你好...", truncateRunes("你好世界", 2))
}
