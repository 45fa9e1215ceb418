package testutil

import (
	"net/http"
	"testing"
)

// The failure branches call t.Errorf/t.Fatalf and are exercised through the
// handler tests that use these helpers.
func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}
