package sha256

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashKnownVector(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		New().Hash([]byte("abc")))
}

func TestVerify(t *testing.T) {
	t.Parallel()

	h := New()
	body := []byte(`{"run_id":"r1"}`)
	digest := h.Hash(body)
	require.True(t, h.Verify(body, digest))
	require.True(t, h.Verify(body, strings.ToUpper(digest)))
	require.False(t, h.Verify([]byte(`{"run_id":"r2"}`), digest))
	require.False(t, h.Verify(body, ""))
}
