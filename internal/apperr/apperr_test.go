package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("ingest: %w", Conflict("duplicate requestId"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestAsWrapsForeignErrors(t *testing.T) {
	e := As(errors.New("boom"))
	require.NotNil(t, e)
	assert.Equal(t, KindUnknown, e.Kind)
	assert.Equal(t, "internal error", e.Message)
}

func TestValidationListsEveryField(t *testing.T) {
	err := Validation("invalid input",
		FieldError{Field: "model", Rule: "oneof", Message: "must be one of the known models"},
		FieldError{Field: "cost", Rule: "gte", Message: "must be >= 0"},
	)
	assert.Len(t, err.Fields, 2)
	assert.Contains(t, err.Error(), "model")
	assert.Contains(t, err.Error(), "cost")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:     http.StatusBadRequest,
		KindConflict:       http.StatusConflict,
		KindNotFound:       http.StatusNotFound,
		KindAuthentication: http.StatusUnauthorized,
		KindAuthorization:  http.StatusForbidden,
		KindUpstream:       http.StatusBadGateway,
		KindUnknown:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), string(kind))
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("storage unavailable", cause)
	assert.ErrorIs(t, err, cause)
}
