package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	t.Parallel()

	err := BadRequest("refresh_token is required", "refresh_token")
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.Equal(t, "BAD_REQUEST: refresh_token is required (refresh_token)", err.Error())

	wrapped := fmt.Errorf("handler: %w", InvalidToken("expired"))
	var target *APIError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "INVALID_TOKEN", target.Code)
	assert.Equal(t, "INVALID_TOKEN: expired", target.Error())

	var nilErr *APIError
	assert.Empty(t, nilErr.Error())
}
