package services

import (
	"errors"

	"github.com/mobilia/backoffice/internal/repositories"
)

var (
	// ErrCatalogProductNotFound indicates the base product does not exist.
	ErrCatalogProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogRepositoryUnavailable indicates the catalog backend is unreachable.
	ErrCatalogRepositoryUnavailable = errors.New("catalog: repository unavailable")

	// ErrSpecialProductInvalidInput indicates the aggregate or command failed validation.
	ErrSpecialProductInvalidInput = errors.New("special product: invalid input")
	// ErrSpecialProductNotFound indicates the aggregate does not exist.
	ErrSpecialProductNotFound = errors.New("special product: not found")
	// ErrSpecialProductCombinationNotFound indicates the combination key is not part of the aggregate.
	ErrSpecialProductCombinationNotFound = errors.New("special product: combination not found")
	// ErrSpecialProductConflict indicates a concurrent write or an id collision.
	ErrSpecialProductConflict = errors.New("special product: conflict")
	// ErrSpecialProductRepositoryUnavailable indicates the persistence layer is unreachable.
	ErrSpecialProductRepositoryUnavailable = errors.New("special product: repository unavailable")

	// ErrUploadInvalidInput indicates the upload is not an accepted image.
	ErrUploadInvalidInput = errors.New("upload: invalid input")
	// ErrUploadTooLarge indicates the upload exceeds the configured limit.
	ErrUploadTooLarge = errors.New("upload: file too large")
	// ErrUploadFailed indicates the storage backend rejected the write.
	ErrUploadFailed = errors.New("upload: storage failure")
)

type repositoryErrorKind int

const (
	repoErrOther repositoryErrorKind = iota
	repoErrNotFound
	repoErrConflict
	repoErrUnavailable
)

func classifyRepositoryError(err error) repositoryErrorKind {
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) {
		return repoErrOther
	}
	switch {
	case repoErr.IsNotFound():
		return repoErrNotFound
	case repoErr.IsConflict():
		return repoErrConflict
	case repoErr.IsUnavailable():
		return repoErrUnavailable
	default:
		return repoErrOther
	}
}
