package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lightninglabs/miniscript-shim/descriptor"
	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/miniscript-shim/shim"
	"github.com/stretchr/testify/require"
)

// fakeModule classifies lines from a fixed table and records every call.
type fakeModule struct {
	labels    map[string]string
	errs      map[string]error
	threshold uint32
	thresErr  error

	calls []string
}

func (f *fakeModule) ScriptType(line string) (string, error) {
	f.calls = append(f.calls, line)
	if err, ok := f.errs[line]; ok {
		return "", err
	}
	if label, ok := f.labels[line]; ok {
		return label, nil
	}

	return "typeX", nil
}

func (f *fakeModule) DescriptorTypes() shim.TypeTable {
	return shim.TypeTable{descriptor.TypePkh, descriptor.TypeWpkh}
}

func (f *fakeModule) ThresholdCount(string) (uint32, error) {
	return f.threshold, f.thresErr
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want []string
	}{{
		name: "no break",
		in:   "pkh(A)",
		want: []string{"pkh(A)"},
	}, {
		name: "crlf is one boundary",
		in:   "a\r\nb",
		want: []string{"a", "b"},
	}, {
		name: "lone cr",
		in:   "a\r\rb",
		want: []string{"a", "", "b"},
	}, {
		name: "blank line",
		in:   "a\n\nb",
		want: []string{"a", "", "b"},
	}, {
		name: "vertical whitespace",
		in:   "a\vb\fc",
		want: []string{"a", "b", "c"},
	}, {
		name: "unicode separators",
		in:   "a\u0085b\u2028c\u2029d",
		want: []string{"a", "b", "c", "d"},
	}, {
		name: "trailing break",
		in:   "a\n",
		want: []string{"a", ""},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, SplitLines(tc.in))
		})
	}
}

func TestClassifyLinesExample(t *testing.T) {
	t.Parallel()

	outcomes, err := ClassifyLines(
		SplitLines("lineA\nlineB"), &fakeModule{},
	)
	require.NoError(t, err)

	raw, err := json.Marshal(outcomes)
	require.NoError(t, err)
	require.Equal(
		t, `[["ok","lineA","typeX"],["ok","lineB","typeX"]]`,
		string(raw),
	)
}

func TestClassifyLines(t *testing.T) {
	t.Parallel()

	badLine := errors.New("unrecognized key format")

	testCases := []struct {
		name   string
		in     string
		errs   map[string]error
		want   []Outcome
		called int
	}{{
		name:   "single line",
		in:     "a",
		want:   []Outcome{{StatusOK, "a", "typeX"}},
		called: 1,
	}, {
		name: "blank segments skipped",
		in:   "a\n\n \t\r\nb\n",
		want: []Outcome{
			{StatusOK, "a", "typeX"},
			{StatusOK, "b", "typeX"},
		},
		called: 2,
	}, {
		name: "recoverable errors recorded",
		in:   "a\nbad\nc",
		errs: map[string]error{"bad": badLine},
		want: []Outcome{
			{StatusOK, "a", "typeX"},
			{StatusErr, "bad", "unrecognized key format"},
			{StatusOK, "c", "typeX"},
		},
		called: 3,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := &fakeModule{errs: tc.errs}
			outcomes, err := ClassifyLines(SplitLines(tc.in), m)
			require.NoError(t, err)
			require.Equal(t, tc.want, outcomes)
			require.Len(t, m.calls, tc.called)
		})
	}
}

func TestClassifyLinesCritical(t *testing.T) {
	t.Parallel()

	fatal := fn.NewCriticalError(errors.New("out of memory"))
	m := &fakeModule{
		errs: map[string]error{"b": fatal},
	}

	outcomes, err := ClassifyLines(SplitLines("a\nb\nc\nd"), m)
	require.ErrorIs(t, err, fatal)
	require.Nil(t, outcomes)

	// Nothing after the failing line is classified.
	require.Equal(t, []string{"a", "b"}, m.calls)
}

func TestRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	m := &fakeModule{
		labels:    map[string]string{"x": "Pkh"},
		errs:      map[string]error{"y": errors.New("bad")},
		threshold: 2,
	}
	require.NoError(t, Run(&buf, "x\ny", m))

	require.Equal(
		t, `{"Pkh":"Pkh","Wpkh":"Wpkh"}`+"\n"+
			`[["ok","x","Pkh"],["err","y","bad"]]`+"\n"+
			"threshold: 2\n",
		buf.String(),
	)
}

func TestRunFailures(t *testing.T) {
	t.Parallel()

	// A threshold error ends the report after two lines.
	var buf bytes.Buffer
	thresErr := errors.New("No threshold")
	err := Run(&buf, "x", &fakeModule{thresErr: thresErr})
	require.ErrorIs(t, err, thresErr)
	require.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)

	// A critical error ends it after the type table.
	buf.Reset()
	fatal := fn.NewCriticalError(errors.New("boom"))
	err = Run(&buf, "x", &fakeModule{errs: map[string]error{"x": fatal}})
	require.True(t, fn.ErrorAs[*fn.CriticalError](err))
	require.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 1)
}

func TestRunShim(t *testing.T) {
	t.Parallel()

	const desc = "sh(wsh(sortedmulti(1,xpub661MyMwAqRbcFW31YEwpkMuc5THy2PS" +
		"t5bDMsktWQcFF8syAmRUapSCGu8ED9W6oDMSgv6Zz8idoc4a6mr8BDzTJY47LJ" +
		"hkJ8UB7WEGuduB/1/0/*,xpub69H7F5d8KSRgmmdJg2KhpAK8SR3DjMwAdkxj3" +
		"ZuxV27CprR9LgpeyGmXUbC6wb7ERfvrnKZjXoUmmDznezpbZb7ap6r1D3tgFxH" +
		"mwMkQTPH/0/0/*)))"

	var buf bytes.Buffer
	require.NoError(t, Run(&buf, desc, WithCache(shim.New(), 10)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], `"ShWshSortedMulti":"ShWshSortedMulti"`)

	var records [][3]string
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &records))
	require.Equal(t, [][3]string{{"ok", desc, "ShWshSortedMulti"}},
		records)
	require.Equal(t, "threshold: 1", lines[2])
}

func TestCachedClassifier(t *testing.T) {
	t.Parallel()

	fatal := fn.NewCriticalError(errors.New("boom"))
	m := &fakeModule{
		errs: map[string]error{
			"bad":   errors.New("bad line"),
			"fatal": fatal,
		},
	}
	c := NewCachedClassifier(m, DefaultCacheSize)

	for i := 0; i < 3; i++ {
		label, err := c.ScriptType("a")
		require.NoError(t, err)
		require.Equal(t, "typeX", label)

		_, err = c.ScriptType("bad")
		require.EqualError(t, err, "bad line")

		_, err = c.ScriptType("fatal")
		require.ErrorIs(t, err, fatal)
	}

	// Good and bad lines are classified once, critical errors every
	// time.
	require.Equal(
		t, []string{"a", "bad", "fatal", "fatal", "fatal"}, m.calls,
	)

	hits, misses := c.Stats()
	require.EqualValues(t, 4, hits)
	require.EqualValues(t, 5, misses)
}

func TestCachedClassifierEviction(t *testing.T) {
	t.Parallel()

	m := &fakeModule{}
	c := NewCachedClassifier(m, 1)

	for _, line := range []string{"a", "b", "a"} {
		_, err := c.ScriptType(line)
		require.NoError(t, err)
	}

	// The second lookup of "a" misses because "b" evicted it.
	require.Equal(t, []string{"a", "b", "a"}, m.calls)
}
