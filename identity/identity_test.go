package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, "%dev.1%", Encode("dev", 0))
	assert.Equal(t, "%release.3%", Encode("release", 2))
	assert.Equal(t, "%sanitize.10%", Encode("sanitize", 9))
}

func TestDecode(t *testing.T) {
	mode, iteration, ok := Decode("%dev.1%")
	require.True(t, ok)
	assert.Equal(t, "dev", mode)
	assert.Equal(t, 0, iteration)

	mode, iteration, ok = Decode(Encode("release", 4))
	require.True(t, ok)
	assert.Equal(t, "release", mode)
	assert.Equal(t, 4, iteration)

	for _, bad := range []string{"", "%", "%%", "dev.1", "%dev%", "%dev.0%", "%dev.x%", "%1dev.1%", "%.1%"} {
		_, _, ok := Decode(bad)
		assert.False(t, ok, "expected %q to fail decoding", bad)
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		runID string
		want  string
	}{
		{
			name: "token with extra params",
			in:   "cluster/test_multidc.py::test_putget_2dc_with_rf[%dev.1%-nodes_list0-1]",
			want: "cluster/test_multidc.py::test_putget_2dc_with_rf[nodes_list0-1].dev.1",
		},
		{
			name:  "token with extra params and run id",
			in:    "cluster/test_multidc.py::test_putget_2dc_with_rf[%dev.1%-nodes_list0-1]",
			runID: "42",
			want:  "cluster/test_multidc.py::test_putget_2dc_with_rf[nodes_list0-1].dev.42",
		},
		{
			name: "bare token drops the brackets entirely",
			in:   "cluster/test_multidc.py::test_multidc[%release.3%]",
			want: "cluster/test_multidc.py::test_multidc.release.3",
		},
		{
			name:  "bare token with run id",
			in:    "cluster/test_multidc.py::test_multidc[%release.3%]",
			runID: "ci-1234",
			want:  "cluster/test_multidc.py::test_multidc.release.ci-1234",
		},
		{
			name: "no token is returned unchanged",
			in:   "topology/test_topology.py::test_add_node",
			want: "topology/test_topology.py::test_add_node",
		},
		{
			name: "foreign bracketed params are not a token",
			in:   "topology/test_topology.py::test_add_node[nodes_list0-1]",
			want: "topology/test_topology.py::test_add_node[nodes_list0-1]",
		},
		{
			name: "underscored mode",
			in:   "test_x.py::test_y[%coverage_debug.2%]",
			want: "test_x.py::test_y.coverage_debug.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rewrite(tt.in, tt.runID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteIdempotent(t *testing.T) {
	once, err := Rewrite("cluster/test_multidc.py::test_multidc[%dev.1%]", "")
	require.NoError(t, err)
	twice, err := Rewrite(once, "")
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	once, err = Rewrite("a.py::b[%dev.2%-x-1]", "run7")
	require.NoError(t, err)
	twice, err = Rewrite(once, "run7")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestRewriteMultipleTokens(t *testing.T) {
	_, err := Rewrite("a.py::b[%dev.1%][%release.2%]", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMultipleTokens)
}
