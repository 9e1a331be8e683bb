package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFields_OrderIndependent(t *testing.T) {
	h := DefaultHasher()

	assert.Equal(t, h.HashFields("kind:mock", "uid:a"), h.HashFields("uid:a", "kind:mock"))
	assert.NotEqual(t, h.HashFields("kind:mock", "uid:a"), h.HashFields("kind:mock", "uid:b"))
	assert.Len(t, h.HashString("x"), 64)
}

func TestHashJSON_MapKeyOrder(t *testing.T) {
	h := DefaultHasher()

	a, err := h.HashJSON(map[string]any{"kind": "mock", "uid": "a"})
	require.NoError(t, err)
	b, err := h.HashJSON(map[string]any{"uid": "a", "kind": "mock"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abc", Short("abc"))
	assert.Equal(t, "01234567", Short("0123456789"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("eye0"))
	assert.NoError(t, ValidateName("world-cam_1"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("has space"))
	assert.Error(t, ValidateName("dotted.name"))
}

func TestValidateNotification(t *testing.T) {
	got, err := ValidateNotification([]byte(`{"collect_calibration_data": true}`))
	require.NoError(t, err)
	assert.Equal(t, true, got["collect_calibration_data"])

	_, err = ValidateNotification([]byte(`{}`))
	assert.Error(t, err)

	_, err = ValidateNotification([]byte(`not json`))
	assert.Error(t, err)

	_, err = ValidateNotification([]byte(`{"a":{"b":{"c":{"d":{"e":{"f":{"g":{"h":{"i":{"j":1}}}}}}}}}}`))
	assert.Error(t, err)
}
