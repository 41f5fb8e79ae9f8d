package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCarriesMetadata(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("connection refused")).
		Component("registry").
		Category(CategoryNetwork).
		Context("endpoint", "https://registry.test").
		Build()

	assert.Equal(t, "connection refused", err.Error())
	assert.Equal(t, "registry", err.GetComponent())
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.Equal(t, "https://registry.test", err.GetContext()["endpoint"])
}

func TestFetchErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := FetchError(fmt.Errorf("received non-2xx response: 502"), 3, 200)
	assert.True(t, Is(err, ErrFetchFailed))
	assert.Equal(t, 3, err.GetContext()["page"])
	assert.Equal(t, 200, err.GetContext()["page_size"])
}

func TestConflictErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := ConflictError("run-abc")
	assert.True(t, Is(err, ErrRunConflict))
	assert.Equal(t, CategoryConflict, err.Category)
	assert.Equal(t, "run-abc", err.GetContext()["active_run_id"])
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	notFound := Newf("grant 123 not found").
		Category(CategoryNotFound).
		Build()
	assert.True(t, IsNotFound(notFound))

	other := Newf("database locked").
		Category(CategoryDatabase).
		Build()
	assert.False(t, IsNotFound(other))
	assert.False(t, IsNotFound(fmt.Errorf("plain error")))
}

func TestEnhancedErrorUnwraps(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("underlying")
	wrapped := New(fmt.Errorf("outer: %w", inner)).Build()
	assert.True(t, Is(wrapped, inner))
}

func TestWrappedEnhancedErrorKeepsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("no sync runs recorded").
		Category(CategoryNotFound).
		Build()
	wrapped := fmt.Errorf("reading status: %w", err)
	require.True(t, IsNotFound(wrapped))
}
