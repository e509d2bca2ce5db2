package logger

import (
	"go/parser"
	"go/token"
	"io/fs"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).Named("orchestrator")

	l.Info("claim confirmed", "block", 42)
	l.Debugf("tick %d", 3)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "claim confirmed", entries[0].Message)
	assert.Equal(t, "orchestrator", entries[0].LoggerName)
	assert.Equal(t, int64(42), entries[0].ContextMap()["block"])
	assert.Equal(t, "tick 3", entries[1].Message)
}

func TestInitFromLevel(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	require.NoError(t, InitFromLevel("warn"))
	assert.False(t, GetLogger().Zap().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, GetLogger().Zap().Core().Enabled(zapcore.WarnLevel))

	assert.Error(t, InitFromLevel("loud"))
}

// The logger ships in the binary; test helpers live in loggertest.
func TestNoTestDependencies(t *testing.T) {
	pkgs, err := parser.ParseDir(token.NewFileSet(), ".", func(fi fs.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, parser.ImportsOnly)
	require.NoError(t, err)
	require.Contains(t, pkgs, "logger")

	for name, f := range pkgs["logger"].Files {
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotEqual(t, "testing", path, name)
			assert.False(t, strings.HasPrefix(path, "go.uber.org/zap/zaptest"), "%s imports %s", name, path)
		}
	}
}
