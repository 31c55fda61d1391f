package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/config"
	"github.com/wippyai/lacewing/engine/netengine"
	"github.com/wippyai/lacewing/errors"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestShell(t *testing.T, cfg *config.Config) (*shell, *syncBuffer) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	eng := netengine.New()
	t.Cleanup(func() { _ = eng.Close() })

	out := &syncBuffer{}
	sh, err := newShell(context.Background(), eng, cfg, zap.NewNop(), out)
	require.NoError(t, err)
	t.Cleanup(sh.Close)
	return sh, out
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestShell_RunFile(t *testing.T) {
	sh, out := newTestShell(t, nil)
	path := writeScript(t, t.TempDir(), "hello.js", `
		print('hello', 1 + 1);
		console.log('from console');
		var answer = 40;
	`)

	require.NoError(t, sh.runFile(path))
	assert.Equal(t, "hello 2\nfrom console\n", out.String())

	result, err := sh.eval("answer + 2")
	require.NoError(t, err)
	assert.Equal(t, "42", result)

	result, err = sh.eval("undefined")
	require.NoError(t, err)
	assert.Equal(t, "undefined", result)
}

func TestShell_Load(t *testing.T) {
	sh, out := newTestShell(t, nil)
	dir := t.TempDir()
	lib := writeScript(t, dir, "lib.js", `function greet(name) { return 'hi ' + name; }`)
	main := writeScript(t, dir, "main.js", `load(`+"`"+lib+"`"+`); print(greet('lacewing'));`)

	require.NoError(t, sh.runFile(main))
	assert.Equal(t, "hi lacewing\n", out.String())

	_, err := sh.eval(`load('/definitely/not/here.js')`)
	assert.Error(t, err)
}

func TestShell_Require(t *testing.T) {
	sh, _ := newTestShell(t, nil)

	result, err := sh.eval(`require('liblacewing').version() === Lacewing.version()`)
	require.NoError(t, err)
	assert.Equal(t, "true", result)

	result, err = sh.eval(`Lacewing.version()`)
	require.NoError(t, err)
	assert.Equal(t, netengine.Version, result)
}

func TestShell_RunFileErrors(t *testing.T) {
	sh, _ := newTestShell(t, nil)

	err := sh.runFile(filepath.Join(t.TempDir(), "missing.js"))
	assert.True(t, errors.HasKind(err, errors.KindNotFound))

	path := writeScript(t, t.TempDir(), "broken.js", `this is not javascript`)
	err = sh.runFile(path)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

func TestShell_REPL(t *testing.T) {
	sh, out := newTestShell(t, nil)

	input := strings.NewReader("var n = 1\n\nn + 1\nthrow new Error('bad')\nprint('after')\n")
	require.NoError(t, sh.repl(context.Background(), input))

	s := out.String()
	assert.Contains(t, s, "undefined\n2\n")
	assert.Contains(t, s, "error: Error: bad")
	assert.Contains(t, s, "after\n")
}

func TestShell_ReportsHandlerFailures(t *testing.T) {
	sh, out := newTestShell(t, nil)

	sh.report("get", stderrors.New("boom"))
	assert.Equal(t, "get handler: boom\n", out.String())
}

func TestShell_Target(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 8080
	sh, _ := newTestShell(t, cfg)
	assert.Equal(t, binding.Port(8080), sh.target(8080))

	cfg.Filter = config.Filter{Local: "127.0.0.1", LocalPort: 9090}
	target := sh.target(8080)
	_, isPort := target.(binding.Port)
	assert.False(t, isPort)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "no guest webserver", status{}.String())
	assert.Equal(t, "not hosting | sent 0 B | received 0 B", status{guest: true}.String())
	assert.Equal(t,
		"http :8080 | https :8443 | sent 10 B | received 20 B",
		status{guest: true, hosting: true, hostingSecure: true, port: 8080, securePort: 8443, sent: 10, received: 20}.String())
}
