package poserr

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestKinds(t *testing.T) {
	v := errors.Wrap(Invalid("cart", errSentinel), "add line")
	assert.True(t, IsValidation(v))
	assert.False(t, IsState(v))
	assert.False(t, IsRetryable(v))
	assert.ErrorIs(t, v, errSentinel)
	assert.EqualError(t, v, "add line: validation: cart: sentinel")

	var ve *ValidationError
	require.ErrorAs(t, v, &ve)
	assert.Equal(t, "cart", ve.Field)

	s := &StateError{Op: "settle", State: "closed", Err: errSentinel}
	assert.True(t, IsState(s))
	assert.False(t, IsValidation(s))
	assert.ErrorIs(t, s, errSentinel)
	assert.EqualError(t, s, "settle not allowed in state closed: sentinel")

	x := errors.Wrap(External("commit", errSentinel), "settle")
	assert.True(t, IsRetryable(x))
	assert.False(t, IsValidation(x))
	assert.ErrorIs(t, x, errSentinel)
}

func TestValidationWithoutField(t *testing.T) {
	assert.EqualError(t, &ValidationError{Reason: "bad"}, "validation: bad")
}
