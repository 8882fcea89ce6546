package composite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mobilia/backoffice/internal/domain"
)

// State is a step of the authoring workflow. States are strictly ordered.
type State int

const (
	StateSelectBaseProducts State = iota + 1
	StateSelectVariants
	StateGenerateCombinations
	StateAssignAssets
	StateFinalize
)

func (s State) String() string {
	switch s {
	case StateSelectBaseProducts:
		return "select_base_products"
	case StateSelectVariants:
		return "select_variants"
	case StateGenerateCombinations:
		return "generate_combinations"
	case StateAssignAssets:
		return "assign_assets"
	case StateFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// VariantSource supplies base products with their ordered variant lists.
type VariantSource interface {
	Product(ctx context.Context, id string) (domain.BaseProduct, error)
}

// Store persists whole composite product aggregates.
type Store interface {
	Create(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error)
	Update(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error)
}

// AssetSaver persists a single combination image of an existing aggregate.
type AssetSaver interface {
	SaveCombinationImage(ctx context.Context, productID string, key domain.CombinationKey, image string) error
}

// ControllerDeps bundles the collaborators of a Controller.
type ControllerDeps struct {
	Products  VariantSource
	Generator CombinationGenerator
	Uploader  Uploader
	Store     Store
	// AssetSaver is optional. When set, uploads made while editing an existing aggregate are saved immediately.
	AssetSaver AssetSaver
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithAssetCarryOver keeps image and price of combinations whose key survives a regeneration.
func WithAssetCarryOver() ControllerOption {
	return func(c *Controller) {
		c.carryOver = true
	}
}

// Details are the commercial attributes captured at Finalize.
type Details struct {
	Name        string
	FinalPrice  float64
	Description string
	Status      domain.CompositeStatus
}

// Controller sequences the authoring of a composite product through the workflow states. Moving forward
// requires the guard of the current state; moving backward is always allowed and keeps captured data.
type Controller struct {
	mu        sync.Mutex
	deps      ControllerDeps
	carryOver bool

	state      State
	products   [2]*domain.BaseProduct
	selections [2][]domain.Variant
	tracker    *AssetTracker
	lastDiff   RegenerationDiff
	details    Details

	existingID    string
	createdAt     time.Time
	persistedKeys []domain.CombinationKey
}

// NewController starts a workflow for a new composite product.
func NewController(deps ControllerDeps, opts ...ControllerOption) (*Controller, error) {
	if deps.Products == nil {
		return nil, errors.New("composite: variant source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("composite: store is required")
	}
	if deps.Generator == nil {
		deps.Generator = LocalGenerator{}
	}
	c := &Controller{
		deps:    deps,
		state:   StateSelectBaseProducts,
		details: Details{Status: domain.CompositeStatusHidden},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Resume opens an existing composite product for editing. A product that already has combinations starts
// at AssignAssets, or at Finalize when every image is present, without regenerating.
func Resume(ctx context.Context, deps ControllerDeps, existing domain.CompositeProduct, opts ...ControllerOption) (*Controller, error) {
	c, err := NewController(deps, opts...)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(existing.ID) == "" {
		return nil, errors.New("composite: resume requires a persisted product id")
	}
	c.existingID = strings.TrimSpace(existing.ID)
	c.createdAt = existing.CreatedAt
	c.details = Details{
		Name:        existing.Name,
		FinalPrice:  existing.FinalPrice,
		Description: existing.Description,
		Status:      existing.Status,
	}

	for side, id := range [2]string{existing.BaseProductA, existing.BaseProductB} {
		if strings.TrimSpace(id) == "" {
			continue
		}
		product, err := deps.Products.Product(ctx, strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf("composite: load base product %s: %w", id, err)
		}
		c.products[side] = &product
	}

	if len(existing.Combinations) == 0 {
		return c, nil
	}
	c.selections[SideA], c.selections[SideB] = Selections(existing.Combinations)
	c.tracker = RestoreAssetTracker(existing.Combinations)
	c.persistedKeys = KeysOf(existing.Combinations)
	if len(c.tracker.Missing()) == 0 {
		c.state = StateFinalize
	} else {
		c.state = StateAssignAssets
	}
	c.log(ctx, "composite.resumed", map[string]any{
		"productId":    c.existingID,
		"state":        c.state.String(),
		"combinations": len(existing.Combinations),
	})
	return c, nil
}

// State returns the current workflow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProductID returns the id of the persisted aggregate, or "" before the first submit.
func (c *Controller) ProductID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existingID
}

// BaseProduct returns the loaded base product of a side.
func (c *Controller) BaseProduct(side Side) (domain.BaseProduct, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side != SideA && side != SideB || c.products[side] == nil {
		return domain.BaseProduct{}, false
	}
	return *c.products[side], true
}

// SelectBaseProducts chooses both base products. Equal ids are rejected before anything is fetched.
// Changing a side's product clears that side's variant selection.
func (c *Controller) SelectBaseProducts(ctx context.Context, productAID, productBID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("select base products", StateSelectBaseProducts); err != nil {
		return err
	}
	ids := [2]string{strings.TrimSpace(productAID), strings.TrimSpace(productBID)}
	if ids[SideA] == "" || ids[SideB] == "" {
		return newValidationError(ConditionBaseProductsMissing, "both base products are required")
	}
	if ids[SideA] == ids[SideB] {
		return newValidationError(ConditionIdenticalBaseProducts, "base products must differ (both are %q)", ids[SideA])
	}

	var loaded [2]domain.BaseProduct
	for side, id := range ids {
		product, err := c.deps.Products.Product(ctx, id)
		if err != nil {
			return fmt.Errorf("composite: load base product %s: %w", id, err)
		}
		loaded[side] = product
	}
	for side := range loaded {
		if c.products[side] == nil || c.products[side].ID != loaded[side].ID {
			c.selections[side] = nil
		}
		product := loaded[side]
		c.products[side] = &product
	}
	return nil
}

// SelectVariants sets the selected variants of a side by value. An empty list clears the selection.
func (c *Controller) SelectVariants(side Side, values []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("select variants", StateSelectVariants); err != nil {
		return err
	}
	if side != SideA && side != SideB {
		return newValidationError(ConditionVariantUnknown, "unknown side %d", int(side))
	}
	product := c.products[side]
	if product == nil {
		return newValidationError(ConditionBaseProductsMissing, "base product %s is not selected", side)
	}

	catalog := make(map[string]domain.Variant, len(product.Variants))
	for _, variant := range product.Variants {
		identity := VariantIdentity(variant)
		if _, ok := catalog[identity]; !ok {
			catalog[identity] = variant
		}
	}
	seen := make(map[string]struct{}, len(values))
	selection := make([]domain.Variant, 0, len(values))
	for _, value := range values {
		identity := VariantIdentity(domain.Variant{Value: value})
		variant, ok := catalog[identity]
		if !ok {
			return newValidationError(ConditionVariantUnknown, "product %s has no variant %q", product.ID, value)
		}
		if _, dup := seen[identity]; dup {
			continue
		}
		seen[identity] = struct{}{}
		selection = append(selection, variant)
	}
	if !product.HasVariants() {
		selection = nil
	}
	c.selections[side] = selection
	return nil
}

// Selection returns the selected variants of a side.
func (c *Controller) Selection(side Side) []domain.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if side != SideA && side != SideB {
		return nil
	}
	return append([]domain.Variant(nil), c.selections[side]...)
}

// Advance moves to the next state when the current state's guard holds.
func (c *Controller) Advance(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, c.state+1)
}

// Back moves to the previous state. Captured data is kept.
func (c *Controller) Back() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(context.Background(), c.state-1)
}

// Transition moves to target. Backward moves of any distance are allowed; forward moves must be a single step.
func (c *Controller) Transition(ctx context.Context, target State) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(ctx, target)
}

func (c *Controller) transitionLocked(ctx context.Context, target State) (State, error) {
	switch {
	case target == c.state:
		return c.state, nil
	case target > StateFinalize:
		return c.state, newValidationError(ConditionInvalidTransition, "finalize is the last step; submit instead")
	case target < StateSelectBaseProducts:
		return c.state, newValidationError(ConditionInvalidTransition, "no state before %s", c.state)
	case target < c.state:
		c.log(ctx, "composite.transition", map[string]any{"from": c.state.String(), "to": target.String()})
		c.state = target
		return c.state, nil
	case target > c.state+1:
		return c.state, newValidationError(ConditionInvalidTransition, "cannot skip from %s to %s", c.state, target)
	}

	if err := c.guardLocked(ctx); err != nil {
		return c.state, err
	}
	c.log(ctx, "composite.transition", map[string]any{"from": c.state.String(), "to": target.String()})
	c.state = target
	return c.state, nil
}

// guardLocked checks the guard for leaving the current state forward. Entering GenerateCombinations runs
// the generator; the new combinations are committed only when it succeeds.
func (c *Controller) guardLocked(ctx context.Context) error {
	switch c.state {
	case StateSelectBaseProducts:
		a, b := c.products[SideA], c.products[SideB]
		if a == nil || b == nil {
			return newValidationError(ConditionBaseProductsMissing, "both base products are required")
		}
		if a.ID == b.ID {
			return newValidationError(ConditionIdenticalBaseProducts, "base products must differ (both are %q)", a.ID)
		}
		return nil
	case StateSelectVariants:
		for _, side := range []Side{SideA, SideB} {
			product := c.products[side]
			if product == nil {
				return newValidationError(ConditionBaseProductsMissing, "base product %s is not selected", side)
			}
			if product.HasVariants() && len(c.selections[side]) == 0 {
				return newValidationError(ConditionVariantSelectionMissing, "select at least one variant of product %s (%s)", product.ID, side)
			}
		}
		return c.regenerateLocked(ctx)
	case StateGenerateCombinations:
		if c.tracker == nil || c.tracker.Len() == 0 {
			return newValidationError(ConditionCombinationsEmpty, "no combinations were generated")
		}
		return nil
	case StateAssignAssets:
		if c.tracker == nil || c.tracker.Len() == 0 {
			return newValidationError(ConditionCombinationsEmpty, "no combinations were generated")
		}
		if uploading := c.tracker.Uploading(); len(uploading) > 0 {
			return &ValidationError{
				Condition: ConditionUploadInFlight,
				Message:   "uploads still running for combinations " + formatIndices(uploading),
				Indices:   uploading,
			}
		}
		if missing := c.tracker.Missing(); len(missing) > 0 {
			return &ValidationError{
				Condition: ConditionImageMissing,
				Message:   "missing images for combinations " + formatIndices(missing),
				Indices:   missing,
			}
		}
		return nil
	default:
		return newValidationError(ConditionInvalidTransition, "no state after %s", c.state)
	}
}

// regenerateLocked replaces the combination set in one step. If the keys come out identical to the current
// set the existing records are kept untouched.
func (c *Controller) regenerateLocked(ctx context.Context) error {
	req := GenerateRequest{
		ProductA:   *c.products[SideA],
		ProductB:   *c.products[SideB],
		SelectionA: c.selections[SideA],
		SelectionB: c.selections[SideB],
	}
	descriptors, err := c.deps.Generator.Generate(ctx, req)
	if err != nil {
		return &GenerationError{Err: err}
	}
	nextKeys := make([]domain.CombinationKey, len(descriptors))
	for i, desc := range descriptors {
		nextKeys[i] = desc.Key
	}

	var prevRecords []domain.CombinationRecord
	if c.tracker != nil {
		prevRecords = c.tracker.Records()
	}
	prevKeys := KeysOf(prevRecords)
	diff := DiffKeys(prevKeys, nextKeys)

	switch {
	case c.tracker != nil && sameSequence(prevKeys, nextKeys):
	case c.carryOver:
		c.tracker = carryOver(descriptors, prevRecords)
	default:
		c.tracker = NewAssetTracker(descriptors)
	}
	c.lastDiff = diff
	c.log(ctx, "composite.generated", map[string]any{
		"productA":     req.ProductA.ID,
		"productB":     req.ProductB.ID,
		"combinations": len(descriptors),
		"added":        len(diff.Added),
		"removed":      len(diff.Removed),
		"retained":     len(diff.Retained),
	})
	return nil
}

// LastDiff returns the key difference produced by the most recent regeneration.
func (c *Controller) LastDiff() RegenerationDiff {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastDiff
}

// Combinations returns a snapshot of the current combination records.
func (c *Controller) Combinations() []domain.CombinationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker == nil {
		return nil
	}
	return c.tracker.Records()
}

// UploadStatuses returns the per-combination upload status map.
func (c *Controller) UploadStatuses() map[domain.CombinationKey]UploadStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker == nil {
		return map[domain.CombinationKey]UploadStatus{}
	}
	return c.tracker.Statuses()
}

// IndexOf resolves a combination key in the current combination set.
func (c *Controller) IndexOf(key domain.CombinationKey) (int, error) {
	tracker, err := c.assetTracker()
	if err != nil {
		return -1, err
	}
	return tracker.IndexOf(key)
}

// UploadImage uploads asset and assigns it to the combination at index. Uploads for different indices may
// run concurrently; a newer upload for the same index supersedes an older one. When an existing aggregate
// is being edited and its combination set is unchanged, the image is also saved through the AssetSaver.
// The returned record is valid even when that intermediate save fails; the failure is returned alongside.
func (c *Controller) UploadImage(ctx context.Context, index int, asset ImageAsset) (domain.CombinationRecord, error) {
	tracker, err := c.assetTracker()
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	record, err := tracker.UploadImage(ctx, index, c.deps.Uploader, asset)
	if err != nil {
		c.log(ctx, "composite.upload_failed", map[string]any{"index": index, "error": err.Error()})
		return domain.CombinationRecord{}, err
	}
	c.log(ctx, "composite.uploaded", map[string]any{"index": index, "key": string(record.Key), "path": record.FinalImage})
	return record, c.saveIntermediate(ctx, tracker, record)
}

// AssignImage assigns an already stored image path to the combination at index.
func (c *Controller) AssignImage(ctx context.Context, index int, path string) (domain.CombinationRecord, error) {
	tracker, err := c.assetTracker()
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	record, err := tracker.AssignImage(index, path)
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	return record, c.saveIntermediate(ctx, tracker, record)
}

func (c *Controller) saveIntermediate(ctx context.Context, tracker *AssetTracker, record domain.CombinationRecord) error {
	c.mu.Lock()
	saver := c.deps.AssetSaver
	productID := c.existingID
	eligible := saver != nil && productID != "" && c.tracker == tracker && sameSequence(tracker.Keys(), c.persistedKeys)
	c.mu.Unlock()
	if !eligible {
		return nil
	}
	if err := saver.SaveCombinationImage(ctx, productID, record.Key, record.FinalImage); err != nil {
		c.log(ctx, "composite.intermediate_save_failed", map[string]any{"productId": productID, "key": string(record.Key), "error": err.Error()})
		return fmt.Errorf("composite: save image of combination %s: %w", record.Key, err)
	}
	return nil
}

// AssignPrice overrides the additional price of the combination at index.
func (c *Controller) AssignPrice(index int, delta float64) error {
	tracker, err := c.assetTracker(StateFinalize)
	if err != nil {
		return err
	}
	return tracker.AssignPrice(index, delta)
}

// ResetPrice restores the default additional price of the combination at index.
func (c *Controller) ResetPrice(index int) error {
	tracker, err := c.assetTracker(StateFinalize)
	if err != nil {
		return err
	}
	return tracker.ResetPrice(index)
}

func (c *Controller) assetTracker(extra ...State) (*AssetTracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	allowed := c.state == StateAssignAssets
	for _, state := range extra {
		if c.state == state {
			allowed = true
		}
	}
	if !allowed {
		return nil, newValidationError(ConditionInvalidTransition, "combination assets cannot be edited in %s", c.state)
	}
	if c.tracker == nil {
		return nil, newValidationError(ConditionCombinationsEmpty, "no combinations were generated")
	}
	return c.tracker, nil
}

// SetDetails captures the commercial attributes. An empty status defaults to hidden.
func (c *Controller) SetDetails(details Details) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("set details", StateFinalize); err != nil {
		return err
	}
	details.Name = strings.TrimSpace(details.Name)
	details.Status = domain.CompositeStatus(strings.ToLower(strings.TrimSpace(string(details.Status))))
	if details.Status == "" {
		details.Status = domain.CompositeStatusHidden
	}
	if err := validateDetails(details); err != nil {
		return err
	}
	c.details = details
	return nil
}

// Details returns the captured commercial attributes.
func (c *Controller) Details() Details {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.details
}

func validateDetails(details Details) error {
	if strings.TrimSpace(details.Name) == "" {
		return newValidationError(ConditionDetailsInvalid, "name is required")
	}
	if math.IsNaN(details.FinalPrice) || math.IsInf(details.FinalPrice, 0) || details.FinalPrice < 0 {
		return newValidationError(ConditionPriceInvalid, "final price must be a finite, non-negative number")
	}
	if !details.Status.IsValid() {
		return newValidationError(ConditionDetailsInvalid, "status must be %q or %q", domain.CompositeStatusVisible, domain.CompositeStatusHidden)
	}
	return nil
}

// Submit creates or updates the aggregate as a whole. It is only available at Finalize. A failed save is
// returned as a SubmitError and the controller stays at Finalize so the submit can be repeated.
func (c *Controller) Submit(ctx context.Context) (domain.CompositeProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireState("submit", StateFinalize); err != nil {
		return domain.CompositeProduct{}, err
	}
	if err := validateDetails(c.details); err != nil {
		return domain.CompositeProduct{}, err
	}
	if c.tracker == nil || c.tracker.Len() == 0 {
		return domain.CompositeProduct{}, newValidationError(ConditionCombinationsEmpty, "no combinations were generated")
	}
	if missing := c.tracker.Missing(); len(missing) > 0 {
		return domain.CompositeProduct{}, &ValidationError{
			Condition: ConditionImageMissing,
			Message:   "missing images for combinations " + formatIndices(missing),
			Indices:   missing,
		}
	}

	aggregate := domain.CompositeProduct{
		ID:           c.existingID,
		Name:         c.details.Name,
		BaseProductA: c.products[SideA].ID,
		BaseProductB: c.products[SideB].ID,
		FinalPrice:   c.details.FinalPrice,
		Description:  c.details.Description,
		Status:       c.details.Status,
		Combinations: c.tracker.Records(),
		CreatedAt:    c.createdAt,
	}
	if err := ValidateAggregate(aggregate); err != nil {
		return domain.CompositeProduct{}, err
	}

	var (
		saved domain.CompositeProduct
		err   error
	)
	if c.existingID == "" {
		saved, err = c.deps.Store.Create(ctx, aggregate)
	} else {
		saved, err = c.deps.Store.Update(ctx, aggregate)
	}
	if err != nil {
		c.log(ctx, "composite.submit_failed", map[string]any{"productId": c.existingID, "error": err.Error()})
		return domain.CompositeProduct{}, &SubmitError{Err: err}
	}

	if saved.ID != "" {
		c.existingID = saved.ID
	}
	if !saved.CreatedAt.IsZero() {
		c.createdAt = saved.CreatedAt
	}
	if len(saved.Combinations) > 0 {
		c.persistedKeys = KeysOf(saved.Combinations)
	} else {
		c.persistedKeys = KeysOf(aggregate.Combinations)
	}
	c.log(ctx, "composite.submitted", map[string]any{
		"productId":    c.existingID,
		"status":       string(aggregate.Status),
		"combinations": len(aggregate.Combinations),
	})
	return saved, nil
}

func (c *Controller) requireState(action string, state State) error {
	if c.state != state {
		return newValidationError(ConditionInvalidTransition, "cannot %s in %s", action, c.state)
	}
	return nil
}

func (c *Controller) log(ctx context.Context, event string, fields map[string]any) {
	if c.deps.Logger == nil {
		return
	}
	c.deps.Logger(ctx, event, fields)
}
