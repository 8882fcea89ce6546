package handlers

import (
	"context"
	"io"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/pagination"
	"github.com/mobilia/backoffice/internal/services"
)

type stubCatalogService struct {
	products []domain.BaseProduct
	err      error
}

func (s *stubCatalogService) ListProducts(context.Context) ([]domain.BaseProduct, error) {
	return s.products, s.err
}

func (s *stubCatalogService) GetProduct(_ context.Context, id string) (domain.BaseProduct, error) {
	if s.err != nil {
		return domain.BaseProduct{}, s.err
	}
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.BaseProduct{}, services.ErrCatalogProductNotFound
}

type stubSpecialProductService struct {
	generateCmd    services.GenerateCombinationsCommand
	generateResult services.GenerateCombinationsResult
	generateErr    error

	saveCmd services.SaveSpecialProductCommand
	saved   domain.CompositeProduct
	saveErr error

	listFilter services.SpecialProductListFilter
	page       pagination.Page[domain.CompositeProduct]

	imageCmd services.SaveCombinationImageCommand
}

func (s *stubSpecialProductService) GenerateCombinations(_ context.Context, cmd services.GenerateCombinationsCommand) (services.GenerateCombinationsResult, error) {
	s.generateCmd = cmd
	return s.generateResult, s.generateErr
}

func (s *stubSpecialProductService) Create(_ context.Context, cmd services.SaveSpecialProductCommand) (domain.CompositeProduct, error) {
	s.saveCmd = cmd
	return s.saved, s.saveErr
}

func (s *stubSpecialProductService) Update(_ context.Context, cmd services.SaveSpecialProductCommand) (domain.CompositeProduct, error) {
	s.saveCmd = cmd
	return s.saved, s.saveErr
}

func (s *stubSpecialProductService) Get(_ context.Context, id string) (domain.CompositeProduct, error) {
	if s.saveErr != nil {
		return domain.CompositeProduct{}, s.saveErr
	}
	if id != s.saved.ID {
		return domain.CompositeProduct{}, services.ErrSpecialProductNotFound
	}
	return s.saved, nil
}

func (s *stubSpecialProductService) List(_ context.Context, filter services.SpecialProductListFilter) (pagination.Page[domain.CompositeProduct], error) {
	s.listFilter = filter
	return s.page, s.saveErr
}

func (s *stubSpecialProductService) SaveCombinationImage(_ context.Context, cmd services.SaveCombinationImageCommand) (domain.CompositeProduct, error) {
	s.imageCmd = cmd
	return s.saved, s.saveErr
}

type stubUploadService struct {
	cmd    services.UploadImageCommand
	body   []byte
	result services.UploadResult
	err    error
	calls  int
}

func (s *stubUploadService) UploadSpecialProductImage(_ context.Context, cmd services.UploadImageCommand) (services.UploadResult, error) {
	s.calls++
	s.cmd = cmd
	if cmd.Body != nil {
		s.body, _ = io.ReadAll(cmd.Body)
	}
	return s.result, s.err
}

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
