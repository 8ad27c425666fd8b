package main

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"clusterpval/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestParseMatrix(t *testing.T) {
	m, err := parseMatrix("1, 1; 1,1")
	require.NoError(t, err)
	assert.True(t, mat.Equal(m, mat.NewDense(2, 2, []float64{1, 1, 1, 1})))

	_, err = parseMatrix("1,2;3")
	assert.Error(t, err)
	_, err = parseMatrix("1,x")
	assert.Error(t, err)
}

func TestWaldCommand(t *testing.T) {
	path, ok := testkit.ReferenceDataPath("ten_point.txt")
	require.True(t, ok)

	cmd := newWaldCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path, "--k", "2", "--k1", "0", "--k2", "1"})
	require.NoError(t, cmd.Execute())

	var got struct {
		Statistic   float64 `json:"statistic"`
		PValue      float64 `json:"p_value"`
		Fingerprint string  `json:"fingerprint"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.InDelta(t, math.Hypot(56.4, 60.8), got.Statistic, 1e-9)
	assert.Greater(t, got.PValue, 0.0)
	assert.Len(t, got.Fingerprint, 12)
}

func TestApproxCommand(t *testing.T) {
	path, ok := testkit.ReferenceDataPath("ten_point.txt")
	require.True(t, ok)

	cmd := newApproxCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path, "--k", "2", "--ndraws", "100", "--seed", "9", "--workers", "2"})
	require.NoError(t, cmd.Execute())

	var got struct {
		Result struct {
			NDraws int     `json:"n_draws"`
			PValue float64 `json:"p_value"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 100, got.Result.NDraws)
	assert.GreaterOrEqual(t, got.Result.PValue, 0.0)
	assert.LessOrEqual(t, got.Result.PValue, 1.0)
}

func TestClusterCommand(t *testing.T) {
	path, ok := testkit.ReferenceDataPath("ten_point.txt")
	require.True(t, ok)

	cmd := newClusterCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path, "--k", "2"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "0\n0\n0\n0\n0\n1\n1\n1\n1\n1\n", out.String())
}

func TestDescribeCommand(t *testing.T) {
	path, ok := testkit.ReferenceDataPath("ten_point.txt")
	require.True(t, ok)

	cmd := newDescribeCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.Execute())

	var got struct {
		Profile struct {
			Rows    int `json:"rows"`
			Columns []struct {
				Name string  `json:"name"`
				Mean float64 `json:"mean"`
			} `json:"columns"`
		} `json:"profile"`
		Warning string `json:"isotropy_warning"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 10, got.Profile.Rows)
	require.Len(t, got.Profile.Columns, 2)
	assert.Equal(t, "x", got.Profile.Columns[0].Name)
	assert.InDelta(t, 45.0, got.Profile.Columns[0].Mean, 1e-12)
	assert.Empty(t, got.Warning)
}
