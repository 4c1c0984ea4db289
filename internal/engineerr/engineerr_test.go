package engineerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := map[Kind]int{
		Unauthorized:    http.StatusUnauthorized,
		NotFound:        http.StatusInternalServerError,
		StoreDegraded:   http.StatusInternalServerError,
		UpstreamFailure: http.StatusInternalServerError,
		CryptoFailure:   http.StatusInternalServerError,
		MalformedInput:  http.StatusBadRequest,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.StatusCode())
	}
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	root := errors.New("boom")
	err := Wrap(UpstreamFailure, "vault call failed", root)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode())
}
