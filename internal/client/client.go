// Package client talks to the back office REST API. Client implements the ports of composite.Controller
// so that authoring sessions can run outside the service process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mobilia/backoffice/internal/composite"
	"github.com/mobilia/backoffice/internal/domain"
)

const (
	defaultTimeout    = 30 * time.Second
	idempotencyHeader = "Idempotency-Key"
	maxResponseBytes  = 8 << 20
)

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a typed client for the back office API.
type Client struct {
	base   *url.URL
	http   HTTPClient
	token  func(ctx context.Context) (string, error)
	newKey func() string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBearerToken sends a fixed Firebase ID token on every request.
func WithBearerToken(token string) Option {
	token = strings.TrimSpace(token)
	return WithTokenSource(func(context.Context) (string, error) { return token, nil })
}

// WithTokenSource obtains the bearer token per request.
func WithTokenSource(source func(ctx context.Context) (string, error)) Option {
	return func(cl *Client) {
		cl.token = source
	}
}

// WithIdempotencyKeys overrides the generator of Idempotency-Key values for create calls.
func WithIdempotencyKeys(gen func() string) Option {
	return func(cl *Client) {
		if gen != nil {
			cl.newKey = gen
		}
	}
}

// New constructs a Client rooted at baseURL, for example https://backoffice.example.com/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("client: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	c := &Client{
		base:   parsed,
		http:   &http.Client{Timeout: defaultTimeout},
		newKey: uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// ListProducts returns every base product.
func (c *Client) ListProducts(ctx context.Context) ([]domain.BaseProduct, error) {
	var payload productList
	if err := c.doJSON(ctx, http.MethodGet, "products", nil, nil, &payload); err != nil {
		return nil, err
	}
	out := make([]domain.BaseProduct, 0, len(payload.Items))
	for _, p := range payload.Items {
		out = append(out, fromWireBaseProduct(p))
	}
	return out, nil
}

// Product implements composite.VariantSource.
func (c *Client) Product(ctx context.Context, id string) (domain.BaseProduct, error) {
	var payload wireBaseProduct
	if err := c.doJSON(ctx, http.MethodGet, "products/"+url.PathEscape(strings.TrimSpace(id)), nil, nil, &payload); err != nil {
		return domain.BaseProduct{}, err
	}
	return fromWireBaseProduct(payload), nil
}

// GenerateResult is the server's combination preview.
type GenerateResult struct {
	ProductA     domain.BaseProduct
	ProductB     domain.BaseProduct
	Combinations []domain.CombinationDescriptor
}

// GenerateCombinations asks the server to expand a pairing. A nil selection is sent as absent.
func (c *Client) GenerateCombinations(ctx context.Context, productAID, productBID string, selectionA, selectionB []domain.Variant) (GenerateResult, error) {
	req := generateRequest{
		ProductAID:        productAID,
		ProductBID:        productBID,
		SelectedVariantsA: toWireVariants(selectionA),
		SelectedVariantsB: toWireVariants(selectionB),
	}
	var payload generateResponse
	if err := c.doJSON(ctx, http.MethodPost, "special-products/generate-combinations", req, nil, &payload); err != nil {
		return GenerateResult{}, err
	}
	result := GenerateResult{
		ProductA:     fromWireBaseProduct(payload.ProductA),
		ProductB:     fromWireBaseProduct(payload.ProductB),
		Combinations: make([]domain.CombinationDescriptor, 0, len(payload.Combinations)),
	}
	for _, d := range payload.Combinations {
		result.Combinations = append(result.Combinations, fromWireDescriptor(d))
	}
	return result, nil
}

// Generate implements composite.CombinationGenerator against the server.
func (c *Client) Generate(ctx context.Context, req composite.GenerateRequest) ([]domain.CombinationDescriptor, error) {
	result, err := c.GenerateCombinations(ctx, req.ProductA.ID, req.ProductB.ID, req.SelectionA, req.SelectionB)
	if err != nil {
		return nil, err
	}
	return result.Combinations, nil
}

// Upload implements composite.Uploader. The body is streamed as multipart/form-data.
func (c *Client) Upload(ctx context.Context, asset composite.ImageAsset) (string, error) {
	if asset.Body == nil {
		return "", errors.New("client: upload body is required")
	}
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, asset.FileName))
		contentType := asset.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, asset.Body)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	headers := http.Header{"Content-Type": {writer.FormDataContentType()}}
	var payload uploadResponse
	if err := c.do(ctx, http.MethodPost, "uploads/special-product", pr, headers, &payload); err != nil {
		_ = pr.CloseWithError(err)
		return "", err
	}
	if payload.Path == "" {
		return "", errors.New("client: upload response missing path")
	}
	return payload.Path, nil
}

// Create implements composite.Store. Each call carries a fresh Idempotency-Key.
func (c *Client) Create(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error) {
	return c.CreateWithKey(ctx, product, c.newKey())
}

// CreateWithKey creates an aggregate with a caller-chosen Idempotency-Key so that a retried submission
// is replayed rather than duplicated.
func (c *Client) CreateWithKey(ctx context.Context, product domain.CompositeProduct, key string) (domain.CompositeProduct, error) {
	headers := http.Header{}
	if key = strings.TrimSpace(key); key != "" {
		headers.Set(idempotencyHeader, key)
	}
	var payload wireSpecialProduct
	if err := c.doJSON(ctx, http.MethodPost, "special-products", toWireSpecialProduct(product), headers, &payload); err != nil {
		return domain.CompositeProduct{}, err
	}
	return fromWireSpecialProduct(payload), nil
}

// Update implements composite.Store.
func (c *Client) Update(ctx context.Context, product domain.CompositeProduct) (domain.CompositeProduct, error) {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.CompositeProduct{}, errors.New("client: update requires a product id")
	}
	var payload wireSpecialProduct
	if err := c.doJSON(ctx, http.MethodPut, "special-products/"+url.PathEscape(id), toWireSpecialProduct(product), nil, &payload); err != nil {
		return domain.CompositeProduct{}, err
	}
	return fromWireSpecialProduct(payload), nil
}

// SaveCombinationImage implements composite.AssetSaver.
func (c *Client) SaveCombinationImage(ctx context.Context, productID string, key domain.CombinationKey, image string) error {
	endpoint := fmt.Sprintf("special-products/%s/combinations/%s/image", url.PathEscape(strings.TrimSpace(productID)), url.PathEscape(string(key)))
	return c.doJSON(ctx, http.MethodPut, endpoint, map[string]string{"finalImage": image}, nil, nil)
}

// Get loads a stored aggregate for re-editing.
func (c *Client) Get(ctx context.Context, productID string) (domain.CompositeProduct, error) {
	var payload wireSpecialProduct
	if err := c.doJSON(ctx, http.MethodGet, "special-products/"+url.PathEscape(strings.TrimSpace(productID)), nil, nil, &payload); err != nil {
		return domain.CompositeProduct{}, err
	}
	return fromWireSpecialProduct(payload), nil
}

// ListOptions narrows List.
type ListOptions struct {
	Status    domain.CompositeStatus
	PageSize  int
	PageToken string
}

// ListPage is one page of aggregates.
type ListPage struct {
	Items         []domain.CompositeProduct
	NextPageToken string
}

// List returns one page of aggregates ordered by name.
func (c *Client) List(ctx context.Context, opts ListOptions) (ListPage, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", string(opts.Status))
	}
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.PageToken != "" {
		query.Set("pageToken", opts.PageToken)
	}
	endpoint := "special-products"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var payload specialProductList
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, nil, &payload); err != nil {
		return ListPage{}, err
	}
	page := ListPage{Items: make([]domain.CompositeProduct, 0, len(payload.Items)), NextPageToken: payload.NextPageToken}
	for _, p := range payload.Items {
		page.Items = append(page.Items, fromWireSpecialProduct(p))
	}
	return page, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, headers http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return fmt.Errorf("client: encode payload: %w", err)
		}
		reader = &buf
		if headers == nil {
			headers = http.Header{}
		}
		headers.Set("Content-Type", "application/json")
	}
	return c.do(ctx, method, endpoint, reader, headers, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, headers http.Header, out any) error {
	target, err := c.base.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("client: resolve %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	for name, values := range headers {
		req.Header[name] = values
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("client: obtain token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("client: decode %s response: %w", target.Path, err)
	}
	return nil
}
