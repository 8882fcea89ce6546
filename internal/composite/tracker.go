package composite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/mobilia/backoffice/internal/domain"
)

// UploadStatus is the per-combination upload state.
type UploadStatus string

const (
	UploadIdle      UploadStatus = "idle"
	UploadUploading UploadStatus = "uploading"
	UploadDone      UploadStatus = "done"
	UploadFailed    UploadStatus = "failed"
)

// ImageAsset is an image waiting to be stored by an Uploader.
type ImageAsset struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader durably stores an image and returns its storage-relative path.
type Uploader interface {
	Upload(ctx context.Context, asset ImageAsset) (string, error)
}

// UploadTicket identifies one upload attempt. Only the latest ticket of an index may complete it.
type UploadTicket struct {
	Index int
	Key   domain.CombinationKey
	seq   uint64
}

// AssetTracker binds a final image and a price delta to each generated combination. Records are addressed
// by their position in the generated ordering or by their combination key. It is safe for concurrent use.
type AssetTracker struct {
	mu      sync.Mutex
	records []domain.CombinationRecord
	index   map[domain.CombinationKey]int
	status  []UploadStatus
	tickets []uint64
	seq     uint64
}

// NewAssetTracker creates imageless records for the descriptors. Each price starts at the suggested price, or 0.
func NewAssetTracker(descriptors []domain.CombinationDescriptor) *AssetTracker {
	records := make([]domain.CombinationRecord, len(descriptors))
	for i, desc := range descriptors {
		records[i] = domain.CombinationRecord{
			CombinationDescriptor: desc,
			AdditionalPrice:       defaultPrice(desc),
		}
	}
	return newTracker(records)
}

// RestoreAssetTracker resumes tracking of records that were persisted earlier.
func RestoreAssetTracker(records []domain.CombinationRecord) *AssetTracker {
	return newTracker(append([]domain.CombinationRecord(nil), records...))
}

// carryOver builds a tracker for descriptors keeping image and price of records whose key is retained.
func carryOver(descriptors []domain.CombinationDescriptor, previous []domain.CombinationRecord) *AssetTracker {
	prev := make(map[domain.CombinationKey]domain.CombinationRecord, len(previous))
	for _, record := range previous {
		prev[record.Key] = record
	}
	records := make([]domain.CombinationRecord, len(descriptors))
	for i, desc := range descriptors {
		record := domain.CombinationRecord{CombinationDescriptor: desc, AdditionalPrice: defaultPrice(desc)}
		if old, ok := prev[desc.Key]; ok {
			record.FinalImage = old.FinalImage
			record.AdditionalPrice = old.AdditionalPrice
		}
		records[i] = record
	}
	return newTracker(records)
}

func newTracker(records []domain.CombinationRecord) *AssetTracker {
	t := &AssetTracker{
		records: records,
		index:   make(map[domain.CombinationKey]int, len(records)),
		status:  make([]UploadStatus, len(records)),
		tickets: make([]uint64, len(records)),
	}
	for i, record := range records {
		t.index[record.Key] = i
		if record.HasImage() {
			t.status[i] = UploadDone
		} else {
			t.status[i] = UploadIdle
		}
	}
	return t
}

func defaultPrice(desc domain.CombinationDescriptor) float64 {
	if desc.SuggestedPrice != nil {
		return *desc.SuggestedPrice
	}
	return 0
}

// Len returns the number of tracked combinations.
func (t *AssetTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Records returns a snapshot of all records in generated order.
func (t *AssetTracker) Records() []domain.CombinationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.CombinationRecord(nil), t.records...)
}

// Keys returns the combination keys in generated order.
func (t *AssetTracker) Keys() []domain.CombinationKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	return KeysOf(t.records)
}

// Record returns the record at index.
func (t *AssetTracker) Record(index int) (domain.CombinationRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIndex(index); err != nil {
		return domain.CombinationRecord{}, err
	}
	return t.records[index], nil
}

// IndexOf resolves a combination key to its position.
func (t *AssetTracker) IndexOf(key domain.CombinationKey) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.index[key]
	if !ok {
		return -1, fmt.Errorf("%w: key %s", ErrUnknownCombination, key)
	}
	return idx, nil
}

// Status returns the upload status of the combination at index.
func (t *AssetTracker) Status(index int) UploadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.status) {
		return UploadIdle
	}
	return t.status[index]
}

// Statuses returns the upload status map keyed by combination key.
func (t *AssetTracker) Statuses() map[domain.CombinationKey]UploadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[domain.CombinationKey]UploadStatus, len(t.records))
	for i, record := range t.records {
		out[record.Key] = t.status[i]
	}
	return out
}

// Missing returns the indices of records without a final image.
func (t *AssetTracker) Missing() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var missing []int
	for i, record := range t.records {
		if !record.HasImage() {
			missing = append(missing, i)
		}
	}
	return missing
}

// Uploading returns the indices of records with an upload in flight.
func (t *AssetTracker) Uploading() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var uploading []int
	for i := range t.records {
		if t.status[i] == UploadUploading {
			uploading = append(uploading, i)
		}
	}
	return uploading
}

// BeginUpload marks the combination as uploading and returns a ticket for the attempt. A ticket issued
// earlier for the same index is superseded and its result will be discarded.
func (t *AssetTracker) BeginUpload(index int) (UploadTicket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIndex(index); err != nil {
		return UploadTicket{}, err
	}
	t.seq++
	t.tickets[index] = t.seq
	t.status[index] = UploadUploading
	return UploadTicket{Index: index, Key: t.records[index].Key, seq: t.seq}, nil
}

// CompleteUpload records the stored path for the ticket's combination.
func (t *AssetTracker) CompleteUpload(ticket UploadTicket, path string) (domain.CombinationRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkTicket(ticket); err != nil {
		return domain.CombinationRecord{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		t.status[ticket.Index] = UploadFailed
		t.tickets[ticket.Index] = 0
		return domain.CombinationRecord{}, &UploadError{Index: ticket.Index, Key: ticket.Key, Err: errors.New("uploader returned an empty path")}
	}
	t.records[ticket.Index].FinalImage = path
	t.status[ticket.Index] = UploadDone
	t.tickets[ticket.Index] = 0
	return t.records[ticket.Index], nil
}

// FailUpload marks the ticket's combination as failed. The record is not modified.
func (t *AssetTracker) FailUpload(ticket UploadTicket, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkTicket(ticket); err != nil {
		return err
	}
	t.status[ticket.Index] = UploadFailed
	t.tickets[ticket.Index] = 0
	return &UploadError{Index: ticket.Index, Key: ticket.Key, Err: cause}
}

// UploadImage stores asset through uploader and assigns the resulting path to the combination at index.
// The record changes only after the uploader reports success. Failures are not retried.
func (t *AssetTracker) UploadImage(ctx context.Context, index int, uploader Uploader, asset ImageAsset) (domain.CombinationRecord, error) {
	if uploader == nil {
		return domain.CombinationRecord{}, errors.New("composite: uploader is not configured")
	}
	ticket, err := t.BeginUpload(index)
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	path, err := uploader.Upload(ctx, asset)
	if err != nil {
		return domain.CombinationRecord{}, t.FailUpload(ticket, err)
	}
	return t.CompleteUpload(ticket, path)
}

// AssignImage assigns an already stored image path to the combination at index. Any upload in flight
// for the index is superseded. An empty path is rejected without touching the record or its status.
func (t *AssetTracker) AssignImage(index int, path string) (domain.CombinationRecord, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.CombinationRecord{}, &ValidationError{
			Condition: ConditionImageMissing,
			Message:   fmt.Sprintf("image path for combination %d is empty", index),
			Indices:   []int{index},
		}
	}
	ticket, err := t.BeginUpload(index)
	if err != nil {
		return domain.CombinationRecord{}, err
	}
	return t.CompleteUpload(ticket, path)
}

// AssignPrice overrides the additional price of the combination at index.
func (t *AssetTracker) AssignPrice(index int, delta float64) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return newValidationError(ConditionPriceInvalid, "additional price must be a finite number")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIndex(index); err != nil {
		return err
	}
	t.records[index].AdditionalPrice = delta
	return nil
}

// ResetPrice restores the default additional price of the combination at index.
func (t *AssetTracker) ResetPrice(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIndex(index); err != nil {
		return err
	}
	t.records[index].AdditionalPrice = defaultPrice(t.records[index].CombinationDescriptor)
	return nil
}

func (t *AssetTracker) checkIndex(index int) error {
	if index < 0 || index >= len(t.records) {
		return fmt.Errorf("%w: index %d of %d", ErrUnknownCombination, index, len(t.records))
	}
	return nil
}

func (t *AssetTracker) checkTicket(ticket UploadTicket) error {
	if err := t.checkIndex(ticket.Index); err != nil {
		return err
	}
	if t.records[ticket.Index].Key != ticket.Key || t.tickets[ticket.Index] != ticket.seq || ticket.seq == 0 {
		return fmt.Errorf("%w: combination %d", ErrUploadSuperseded, ticket.Index)
	}
	return nil
}
