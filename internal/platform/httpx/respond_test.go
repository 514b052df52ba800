package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:                           http.StatusNotFound,
		fmt.Errorf("kind: %w", ErrValidation): http.StatusBadRequest,
		ErrForbidden:                          http.StatusForbidden,
		ErrUpstream:                           http.StatusBadGateway,
		fmt.Errorf("other"):                   http.StatusInternalServerError,
	}
	for err, want := range cases {
		res := httptest.NewRecorder()
		RespondError(res, err)
		assert.Equal(t, want, res.Code, err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
		assert.Equal(t, want, body.Status)
		assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	}
}
