// Package image handles parsing and normalizing container image
// references (registry/repository:tag or @digest) using the same
// reference grammar Docker and most registries implement.
package image

import (
	"github.com/cuemby/libcrun-shim/pkg/model"
	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/google/go-containerregistry/pkg/name"
)

// ParseReference parses raw into a model.ImageRecord, defaulting the
// registry to Docker Hub and the tag to "latest" when omitted, exactly as
// name.ParseReference does.
func ParseReference(raw string, opts ...name.Option) (model.ImageRecord, error) {
	ref, err := name.ParseReference(raw, opts...)
	if err != nil {
		return model.ImageRecord{}, shimerr.ValidationWithCause(err, "parse image reference %q", raw)
	}

	repo := ref.Context()
	registry := repo.RegistryStr()
	if registry == "index.docker.io" {
		registry = "docker.io"
	}
	rec := model.ImageRecord{
		Registry:   registry,
		Repository: repo.RepositoryStr(),
		Reference:  ref.Identifier(),
	}
	if _, ok := ref.(name.Digest); ok {
		rec.IsDigest = true
	}
	return rec, nil
}

// CanonicalName renders rec back into registry/repository:tag (or
// registry/repository@digest) form.
func CanonicalName(rec model.ImageRecord) string {
	sep := ":"
	if rec.IsDigest {
		sep = "@"
	}
	return rec.Registry + "/" + rec.Repository + sep + rec.Reference
}

// Idempotent reports whether re-parsing the canonical form of rec yields an
// identical registry/repository/reference, the property the runtime relies
// on when it stores and later re-displays image references.
func Idempotent(rec model.ImageRecord) bool {
	reparsed, err := ParseReference(CanonicalName(rec))
	if err != nil {
		return false
	}
	return reparsed.Registry == rec.Registry &&
		reparsed.Repository == rec.Repository &&
		reparsed.Reference == rec.Reference &&
		reparsed.IsDigest == rec.IsDigest
}
