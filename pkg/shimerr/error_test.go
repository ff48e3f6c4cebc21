package shimerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{"runtime", Runtime("container %q already exists", "c1"), `runtime: container "c1" already exists`},
		{"io", Io(cause, "vsock connect"), "io: vsock connect: boom"},
		{"serialization", Serialization("truncated frame"), "serialization: truncated frame"},
		{"not_found", NotFound("c1"), "not_found: container not found: c1"},
		{"validation", Validation("rootfs", "must not be empty"), "validation: rootfs: must not be empty"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := RuntimeWithCause(cause, "create failed")
	require.ErrorIs(t, err, cause)
}

func TestKindOf(t *testing.T) {
	err := NotFound("missing")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsMatchesKindSentinel(t *testing.T) {
	err := NotFound("c1")
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(err, &Error{Kind: KindValidation}))
}
