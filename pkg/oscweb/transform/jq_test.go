package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestJqTransform(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("invalid query fails to build", func(t *testing.T) {
		_, err := JqTransform("select(", logger)
		assert.Error(t, err)
	})

	t.Run("select filters documents", func(t *testing.T) {
		positive, err := JqTransform("select(.v[0] > 0)", logger)
		require.NoError(t, err)

		d := doc("/level", json.Number("3"))
		result, cont := positive(d)
		assert.Same(t, d, result)
		assert.True(t, cont)

		result, cont = positive(doc("/level", json.Number("-1")))
		assert.Nil(t, result)
		assert.False(t, cont)
	})

	t.Run("boolean result keeps or drops", func(t *testing.T) {
		isLed, err := JqTransform(`$address | startswith("/led/")`, logger)
		require.NoError(t, err)

		result, _ := isLed(doc("/led/on"))
		assert.NotNil(t, result)

		result, _ = isLed(doc("/synth/freq"))
		assert.Nil(t, result)
	})

	t.Run("object result rewrites the document", func(t *testing.T) {
		rewrite, err := JqTransform(`{address: ("/browser" + $address), v: (.v + ["extra"])}`, logger)
		require.NoError(t, err)

		result, cont := rewrite(doc("/led/on", json.Number("1")))
		require.NotNil(t, result)
		assert.True(t, cont)
		assert.Equal(t, "/browser/led/on", result.Address)
		assert.Equal(t, []any{json.Number("1"), "extra"}, result.V)
	})

	t.Run("non document result passes original through", func(t *testing.T) {
		count, err := JqTransform(`.v | length`, logger)
		require.NoError(t, err)

		d := doc("/a", "x")
		result, cont := count(d)
		assert.Same(t, d, result)
		assert.True(t, cont)
	})

	t.Run("runtime error passes original through", func(t *testing.T) {
		broken, err := JqTransform(`error("nope")`, logger)
		require.NoError(t, err)

		d := doc("/a")
		result, _ := broken(d)
		assert.Same(t, d, result)
	})

	t.Run("blob wrapper is visible to the query", func(t *testing.T) {
		hasBlob, err := JqTransform(`.v | map(type == "object" and has("base64")) | any`, logger)
		require.NoError(t, err)

		result, _ := hasBlob(doc("/blob", map[string]any{"base64": "AQID"}))
		assert.NotNil(t, result)

		result, _ = hasBlob(doc("/blob", "plain"))
		assert.Nil(t, result)
	})
}
