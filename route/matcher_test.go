package route_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reccd/reccd/route"
)

func TestStaticPath(t *testing.T) {
	m, err := route.Compile("/v1/test")
	require.NoError(t, err)

	captured, ok := m.Match("/v1/test")
	require.True(t, ok)
	assert.Empty(t, captured)

	_, ok = m.Match("/v1/tes")
	assert.False(t, ok)

	_, ok = m.Match("/v1/test/kkk")
	assert.False(t, ok)
}

func TestDynamicPath(t *testing.T) {
	m, err := route.Compile("/v1/{test}/test")
	require.NoError(t, err)

	_, ok := m.Match("/v1/test")
	assert.False(t, ok)

	captured, ok := m.Match("/v1/aaa/test")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"test": "aaa"}, captured)
}

func TestDynamicPathRegex(t *testing.T) {
	m, err := route.Compile("/v1/{value:[1-9]+}/test")
	require.NoError(t, err)

	_, ok := m.Match("/v1/test")
	assert.False(t, ok)

	captured, ok := m.Match("/v1/1234/test")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"value": "1234"}, captured)

	_, ok = m.Match("/v1/kkk/test")
	assert.False(t, ok)

	_, ok = m.Match("/v1/12a4/test")
	assert.False(t, ok)
}

func TestPercentEncodingInvariance(t *testing.T) {
	m, err := route.Compile("/v1/{name}")
	require.NoError(t, err)

	captured, ok := m.Match("/v1/hello%20world")
	require.True(t, ok)
	assert.Equal(t, "hello world", captured["name"])
}

func TestInvalidTemplate(t *testing.T) {
	_, err := route.Compile("v1/test")
	assert.Error(t, err)

	_, err = route.Compile("/v1/{")
	assert.Error(t, err)

	_, err = route.Compile("/v1/}")
	assert.Error(t, err)
}

func TestMatchIsFullyAnchored(t *testing.T) {
	m, err := route.Compile("/v1/{id}")
	require.NoError(t, err)

	_, ok := m.Match("/v1/")
	assert.False(t, ok)

	_, ok = m.Match("/v1/abc/def")
	assert.False(t, ok)
}
