package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorPassthrough(t *testing.T) {
	err := NewForbidden("no role")

	de := ToDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, "FORBIDDEN", de.Code)
	assert.Equal(t, "no role", de.Message)
	assert.Equal(t, http.StatusForbidden, de.HTTPStatus)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	de := ToDomainError(fmt.Errorf("socket closed"))
	require.NotNil(t, de)
	assert.Equal(t, "INTERNAL_ERROR", de.Code)
	assert.ErrorContains(t, de, "socket closed")
}

func TestToDomainErrorUnwrapsWrapped(t *testing.T) {
	inner := NewDuplicateTicket("c42")
	wrapped := fmt.Errorf("selection: %w", inner)

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, "DUPLICATE_TICKET", de.Code)
	assert.Equal(t, "c42", de.Details["channel_id"])
	assert.Contains(t, de.Message, "<#c42>")
}

func TestToDomainErrorNil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
	assert.Empty(t, CodeOf(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "ARCHIVER_UNAVAILABLE", CodeOf(NewArchiverUnavailable(errors.New("x"))))
	assert.Equal(t, "INTERNAL_ERROR", CodeOf(errors.New("x")))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("rate limited")
	err := NewProvisioningFailed(cause)
	assert.ErrorIs(t, err, cause)
}
