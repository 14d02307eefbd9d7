package vapoursynth

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thesyncim/vapoursynth/vstest"
)

func newTestAPI(t *testing.T, opts ...vstest.Option) (*API, *vstest.Engine) {
	t.Helper()
	e := vstest.New(opts...)
	api, err := New(e, Options{})
	require.NoError(t, err)
	return api, e
}

// newTestCore returns a core that is closed when the test ends.
func newTestCore(t *testing.T, opts ...vstest.Option) (*Core, *vstest.Engine) {
	t.Helper()
	api, e := newTestAPI(t, opts...)
	c, err := api.NewCore(CoreOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, e
}

// blankClip returns a 16x8 Gray8 clip whose samples are all 7.
func blankClip(t *testing.T, c *Core, length int) *Node {
	t.Helper()
	std, err := c.PluginByNamespace("std")
	require.NoError(t, err)
	args := c.NewMap()
	defer args.Release()
	require.NoError(t, args.SetInt("width", 16))
	require.NoError(t, args.SetInt("height", 8))
	require.NoError(t, args.SetInt("length", int64(length)))
	require.NoError(t, args.SetInt("format", int64(FormatGray8)))
	require.NoError(t, args.SetFloat("color", 7))
	n, err := std.InvokeClip("BlankClip", args.Ref())
	require.NoError(t, err)
	return n
}

func nativeNode(n *Node) uintptr { return n.r.ptr.Load() }

// evalScript understands three commands, one per line: "blank N" sets
// output 0 to an N frame clip, "copy a b" copies variable a to b and
// "fail" aborts with exit code 2.
func evalScript(sc *vstest.ScriptContext, text, _ string) error {
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "blank":
			length, err := strconv.Atoi(f[1])
			if err != nil {
				return err
			}
			clip, err := sc.Invoke("std", "BlankClip", map[string]any{"length": length, "width": 8, "height": 8})
			if err != nil {
				return err
			}
			sc.SetOutput(0, clip, 0)
		case "copy":
			v, ok := sc.Var(f[1])
			if !ok {
				return errors.New("name '" + f[1] + "' is not defined")
			}
			if err := sc.SetVar(f[2], v); err != nil {
				return err
			}
		case "fail":
			return &vstest.ExitError{Code: 2, Message: "script aborted"}
		default:
			return errors.New("unknown command " + f[0])
		}
	}
	return nil
}

var _ PluginBackend = (*vstest.Engine)(nil)
