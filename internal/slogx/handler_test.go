package slogx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConsoleOnlyWhenNoFilePath(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FileConfig{})
	logger.Info("hello", "k", "v")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), "k=v")
}

func TestNewWritesToFileWhenPathSet(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger := New(&buf, FileConfig{Path: dir + "/out.log"})
	logger.Info("to both sinks")
	require.Contains(t, buf.String(), "to both sinks")
}

func TestColorTextHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorTextHandler(&buf, nil))
	logger.Warn("careful")
	require.True(t, strings.Contains(buf.String(), "WARN") || strings.Contains(buf.String(), "\033["))
}
