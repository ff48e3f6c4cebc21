package image

import (
	"testing"

	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferenceDefaultsRegistryAndTag(t *testing.T) {
	rec, err := ParseReference("alpine")
	require.NoError(t, err)
	assert.Equal(t, "docker.io", rec.Registry)
	assert.Equal(t, "library/alpine", rec.Repository)
	assert.Equal(t, "latest", rec.Reference)
	assert.False(t, rec.IsDigest)
}

func TestParseReferenceWithExplicitTag(t *testing.T) {
	rec, err := ParseReference("ghcr.io/cuemby/agent:v1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", rec.Registry)
	assert.Equal(t, "cuemby/agent", rec.Repository)
	assert.Equal(t, "v1.2.3", rec.Reference)
	assert.False(t, rec.IsDigest)
}

func TestParseReferenceWithDigest(t *testing.T) {
	digest := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	rec, err := ParseReference("ghcr.io/cuemby/agent@" + digest)
	require.NoError(t, err)
	assert.True(t, rec.IsDigest)
	assert.Equal(t, digest, rec.Reference)
}

func TestParseReferenceRejectsInvalid(t *testing.T) {
	_, err := ParseReference("INVALID!!!reference")
	require.Error(t, err)
	kind, ok := shimerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, shimerr.KindValidation, kind)
}

func TestIdempotentForTaggedAndDigestReferences(t *testing.T) {
	rec, err := ParseReference("docker.io/library/nginx:1.27")
	require.NoError(t, err)
	assert.True(t, Idempotent(rec))

	digest := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	digestRec, err := ParseReference("docker.io/library/nginx@" + digest)
	require.NoError(t, err)
	assert.True(t, Idempotent(digestRec))
}
