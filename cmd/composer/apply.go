package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mobilia/backoffice/internal/client"
	"github.com/mobilia/backoffice/internal/composite"
	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/platform/observability"
)

const (
	submitAttempts = 3
	submitBackoff  = 500 * time.Millisecond
)

func newApplyCmd(a *app) *cobra.Command {
	var (
		file     string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "apply -f manifest.yaml",
		Short: "Create or re-edit composite products from a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifests, err := loadManifests(file)
			if err != nil {
				return err
			}
			results := make([]applyResult, 0, len(manifests))
			for _, m := range manifests {
				saved, err := a.applyManifest(cmd.Context(), m, parallel)
				if err != nil {
					label := m.ID
					if label == "" {
						label = m.Name
					}
					return fmt.Errorf("apply %q: %w", label, err)
				}
				results = append(results, applyResult{
					ID:           saved.ID,
					Name:         saved.Name,
					Status:       string(saved.Status),
					Combinations: len(saved.Combinations),
					Created:      m.ID == "",
				})
			}
			return printYAML(a.out, results)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Manifest file (YAML, one document per product)")
	cmd.Flags().IntVar(&parallel, "parallel", defaultParallel, "Maximum concurrent image uploads")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type applyResult struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Status       string `yaml:"status"`
	Combinations int    `yaml:"combinations"`
	Created      bool   `yaml:"created"`
}

// keyedStore sends every create with the same Idempotency-Key so that a retried submit is replayed.
type keyedStore struct {
	backOffice
	key string
}

func (s keyedStore) Create(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error) {
	return s.CreateWithKey(ctx, product, s.key)
}

func (a *app) applyManifest(ctx context.Context, m manifest, parallel int) (domain.CompositeProduct, error) {
	key := strings.TrimSpace(m.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	deps := composite.ControllerDeps{
		Products:   a.api,
		Generator:  a.api,
		Uploader:   a.api,
		Store:      keyedStore{backOffice: a.api, key: key},
		AssetSaver: a.api,
		Logger:     observability.EventLogger(a.logger),
	}
	var opts []composite.ControllerOption
	if m.CarryOver {
		opts = append(opts, composite.WithAssetCarryOver())
	}

	var (
		c   *composite.Controller
		err error
	)
	if m.ID != "" {
		existing, err := a.api.Get(ctx, m.ID)
		if err != nil {
			return domain.CompositeProduct{}, fmt.Errorf("load %s: %w", m.ID, err)
		}
		c, err = composite.Resume(ctx, deps, existing, opts...)
		if err != nil {
			return domain.CompositeProduct{}, err
		}
	} else {
		c, err = composite.NewController(deps, opts...)
		if err != nil {
			return domain.CompositeProduct{}, err
		}
	}

	if err := steer(ctx, c, m); err != nil {
		return domain.CompositeProduct{}, err
	}
	if diff := c.LastDiff(); !diff.Unchanged() {
		a.logger.Info("combinations regenerated",
			zap.Int("added", len(diff.Added)),
			zap.Int("removed", len(diff.Removed)),
			zap.Int("retained", len(diff.Retained)),
		)
	}
	if err := a.applyCombinations(ctx, c, m, parallel); err != nil {
		return domain.CompositeProduct{}, err
	}
	if c.State() == composite.StateAssignAssets {
		if _, err := c.Advance(ctx); err != nil {
			return domain.CompositeProduct{}, err
		}
	}
	if err := c.SetDetails(mergeDetails(c.Details(), m)); err != nil {
		return domain.CompositeProduct{}, err
	}
	return a.submit(ctx, c)
}

// steer brings the controller to AssignAssets, regenerating only when the manifest changes the pairing or
// the variant selection.
func steer(ctx context.Context, c *composite.Controller, m manifest) error {
	changeProducts := c.ProductID() == "" || m.ProductA != "" && (!hasProduct(c, composite.SideA, m.ProductA) || !hasProduct(c, composite.SideB, m.ProductB))
	changeVariants := changeProducts || c.State() < composite.StateAssignAssets ||
		m.VariantsA != nil && !sameValues(c.Selection(composite.SideA), m.VariantsA) ||
		m.VariantsB != nil && !sameValues(c.Selection(composite.SideB), m.VariantsB)

	if changeProducts {
		if _, err := c.Transition(ctx, composite.StateSelectBaseProducts); err != nil {
			return err
		}
		if err := c.SelectBaseProducts(ctx, m.ProductA, m.ProductB); err != nil {
			return err
		}
		if _, err := c.Advance(ctx); err != nil {
			return err
		}
	}
	if !changeVariants {
		return nil
	}
	if _, err := c.Transition(ctx, composite.StateSelectVariants); err != nil {
		return err
	}
	selections := []struct {
		side   composite.Side
		values []string
	}{
		{composite.SideA, m.VariantsA},
		{composite.SideB, m.VariantsB},
	}
	for _, sel := range selections {
		if len(sel.values) == 0 {
			continue
		}
		if err := c.SelectVariants(sel.side, sel.values); err != nil {
			return err
		}
	}
	for c.State() < composite.StateAssignAssets {
		if _, err := c.Advance(ctx); err != nil {
			return err
		}
	}
	return nil
}

type combinationJob struct {
	index int
	entry manifestCombination
}

// applyCombinations uploads or assigns images concurrently, one job per combination, then applies prices.
func (a *app) applyCombinations(ctx context.Context, c *composite.Controller, m manifest, parallel int) error {
	if len(m.Combinations) == 0 {
		return nil
	}
	jobs, err := resolveCombinations(c.Combinations(), m.Combinations)
	if err != nil {
		return err
	}

	var withImages bool
	for _, job := range jobs {
		if job.entry.Image != "" || job.entry.ImagePath != "" {
			withImages = true
			break
		}
	}
	if withImages && c.State() == composite.StateFinalize {
		if _, err := c.Back(); err != nil {
			return err
		}
	}

	if parallel <= 0 {
		parallel = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, job := range jobs {
		if job.entry.Image == "" && job.entry.ImagePath == "" {
			continue
		}
		g.Go(func() error {
			return a.applyImage(gctx, c, m, job)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, job := range jobs {
		if job.entry.AdditionalPrice == nil {
			continue
		}
		if err := c.AssignPrice(job.index, *job.entry.AdditionalPrice); err != nil {
			return fmt.Errorf("combination %d: %w", job.index, err)
		}
	}
	return nil
}

func (a *app) applyImage(ctx context.Context, c *composite.Controller, m manifest, job combinationJob) error {
	var (
		record domain.CombinationRecord
		err    error
	)
	if job.entry.ImagePath != "" {
		record, err = c.AssignImage(ctx, job.index, job.entry.ImagePath)
	} else {
		record, err = uploadFile(ctx, c, job.index, m.imageFile(job.entry.Image))
	}
	switch {
	case err != nil && record.Key != "":
		// Only the immediate save failed; the full submit persists the image anyway.
		a.logger.Warn("intermediate image save failed", zap.Int("index", job.index), zap.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("combination %d: %w", job.index, err)
	}
	a.logger.Info("image assigned", zap.Int("index", job.index), zap.String("key", string(record.Key)), zap.String("path", record.FinalImage))
	return nil
}

func uploadFile(ctx context.Context, c *composite.Controller, index int, path string) (domain.CombinationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	return c.UploadImage(ctx, index, composite.ImageAsset{
		FileName:    filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Size:        info.Size(),
		Body:        f,
	})
}

// resolveCombinations maps manifest entries onto combination indices. Two entries may not target the same
// combination.
func resolveCombinations(records []domain.CombinationRecord, entries []manifestCombination) ([]combinationJob, error) {
	jobs := make([]combinationJob, 0, len(entries))
	taken := make(map[int]int, len(entries))
	for i, entry := range entries {
		index := -1
		for j, record := range records {
			if entry.Key != "" {
				if string(record.Key) == strings.TrimSpace(entry.Key) {
					index = j
					break
				}
				continue
			}
			if matchOption(record.OptionA, entry.A) && matchOption(record.OptionB, entry.B) {
				index = j
				break
			}
		}
		if index < 0 {
			return nil, fmt.Errorf("combinations[%d]: %w (key=%q a=%q b=%q)", i, composite.ErrUnknownCombination, entry.Key, entry.A, entry.B)
		}
		if prev, dup := taken[index]; dup {
			return nil, fmt.Errorf("combinations[%d]: targets the same combination as combinations[%d]", i, prev)
		}
		taken[index] = i
		jobs = append(jobs, combinationJob{index: index, entry: entry})
	}
	return jobs, nil
}

func matchOption(opt domain.VariantOption, value string) bool {
	if strings.TrimSpace(value) == "" {
		return opt.WholeProduct
	}
	return !opt.WholeProduct && composite.VariantIdentity(opt.Variant) == composite.VariantIdentity(domain.Variant{Value: value})
}

func hasProduct(c *composite.Controller, side composite.Side, id string) bool {
	product, ok := c.BaseProduct(side)
	return ok && product.ID == id
}

func sameValues(selection []domain.Variant, values []string) bool {
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[composite.VariantIdentity(domain.Variant{Value: v})] = struct{}{}
	}
	have := make(map[string]struct{}, len(selection))
	for _, v := range selection {
		have[composite.VariantIdentity(v)] = struct{}{}
	}
	if len(want) != len(have) {
		return false
	}
	for identity := range want {
		if _, ok := have[identity]; !ok {
			return false
		}
	}
	return true
}

func mergeDetails(current composite.Details, m manifest) composite.Details {
	if name := strings.TrimSpace(m.Name); name != "" {
		current.Name = name
	}
	if m.Description != "" {
		current.Description = m.Description
	}
	if m.FinalPrice != nil {
		current.FinalPrice = *m.FinalPrice
	}
	if m.Status != "" {
		current.Status = domain.CompositeStatus(m.Status)
	}
	return current
}

// submit retries temporary API failures. The controller stays at Finalize after a failed submit.
func (a *app) submit(ctx context.Context, c *composite.Controller) (domain.CompositeProduct, error) {
	for attempt := 1; ; attempt++ {
		saved, err := c.Submit(ctx)
		if err == nil {
			return saved, nil
		}
		var apiErr *client.APIError
		if attempt >= submitAttempts || !errors.As(err, &apiErr) || !apiErr.Temporary() {
			return domain.CompositeProduct{}, err
		}
		a.logger.Warn("submit failed; retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return domain.CompositeProduct{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * submitBackoff):
		}
	}
}
