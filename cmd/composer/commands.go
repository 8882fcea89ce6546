package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mobilia/backoffice/internal/client"
	"github.com/mobilia/backoffice/internal/domain"
)

func newProductsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List base products and their variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			products, err := a.api.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			views := make([]productView, 0, len(products))
			for _, p := range products {
				views = append(views, newProductView(p))
			}
			return printYAML(a.out, views)
		},
	}
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		productA, productB   string
		variantsA, variantsB []string
	)
	cmd := &cobra.Command{
		Use:   "generate --a PRODUCT --b PRODUCT",
		Short: "Preview the combinations of two base products",
		Long: `Preview the combinations of two base products. Without --variants-a or --variants-b a side
contributes the whole product. The output can be pasted into the combinations list of a manifest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.api.GenerateCombinations(cmd.Context(), productA, productB, selection(variantsA), selection(variantsB))
			if err != nil {
				return err
			}
			view := generateView{
				ProductA:     newProductView(result.ProductA),
				ProductB:     newProductView(result.ProductB),
				Combinations: make([]combinationView, 0, len(result.Combinations)),
			}
			for i, desc := range result.Combinations {
				view.Combinations = append(view.Combinations, newCombinationView(i, domain.CombinationRecord{CombinationDescriptor: desc}, false))
			}
			return printYAML(a.out, view)
		},
	}
	cmd.Flags().StringVar(&productA, "a", "", "Base product id of side A")
	cmd.Flags().StringVar(&productB, "b", "", "Base product id of side B")
	cmd.Flags().StringSliceVar(&variantsA, "variants-a", nil, "Variant values of side A")
	cmd.Flags().StringSliceVar(&variantsB, "variants-b", nil, "Variant values of side B")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}

// selection turns flag values into a variant selection. No values means the side was not provided.
func selection(values []string) []domain.Variant {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.Variant, 0, len(values))
	for _, v := range values {
		out = append(out, domain.Variant{Value: strings.TrimSpace(v)})
	}
	return out
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Print a composite product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := a.api.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(a.out, newSpecialProductView(product))
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		status    string
		pageSize  int
		pageToken string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List composite products by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := a.api.List(cmd.Context(), client.ListOptions{
				Status:    domain.CompositeStatus(strings.ToLower(strings.TrimSpace(status))),
				PageSize:  pageSize,
				PageToken: pageToken,
			})
			if err != nil {
				return err
			}
			view := listView{Items: make([]listItemView, 0, len(page.Items)), NextPageToken: page.NextPageToken}
			for _, p := range page.Items {
				view.Items = append(view.Items, listItemView{
					ID:           p.ID,
					Name:         p.Name,
					Status:       string(p.Status),
					Combinations: len(p.Combinations),
				})
			}
			return printYAML(a.out, view)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list products with this status (visible or hidden)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Page size (server default when 0)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token of the page to fetch")
	return cmd
}

type variantView struct {
	Name       string   `yaml:"name"`
	Value      string   `yaml:"value"`
	Stock      *int     `yaml:"stock,omitempty"`
	PriceDelta *float64 `yaml:"priceDelta,omitempty"`
}

type productView struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Variants []variantView `yaml:"variants,omitempty"`
}

type combinationView struct {
	Index           int      `yaml:"index"`
	Key             string   `yaml:"key"`
	A               string   `yaml:"a"`
	B               string   `yaml:"b"`
	SuggestedPrice  *float64 `yaml:"suggestedPrice,omitempty"`
	AdditionalPrice *float64 `yaml:"additionalPrice,omitempty"`
	ImagePath       string   `yaml:"imagePath,omitempty"`
}

type generateView struct {
	ProductA     productView       `yaml:"productA"`
	ProductB     productView       `yaml:"productB"`
	Combinations []combinationView `yaml:"combinations"`
}

type specialProductView struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Status       string            `yaml:"status"`
	ProductA     string            `yaml:"productA"`
	ProductB     string            `yaml:"productB"`
	FinalPrice   float64           `yaml:"finalPrice"`
	Description  string            `yaml:"description,omitempty"`
	CreatedAt    string            `yaml:"createdAt,omitempty"`
	UpdatedAt    string            `yaml:"updatedAt,omitempty"`
	Combinations []combinationView `yaml:"combinations"`
}

type listItemView struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Status       string `yaml:"status"`
	Combinations int    `yaml:"combinations"`
}

type listView struct {
	Items         []listItemView `yaml:"items"`
	NextPageToken string         `yaml:"nextPageToken,omitempty"`
}

func newProductView(p domain.BaseProduct) productView {
	view := productView{ID: p.ID, Name: p.Name}
	for _, v := range p.Variants {
		view.Variants = append(view.Variants, variantView{Name: v.Name, Value: v.Value, Stock: v.Stock, PriceDelta: v.PriceDelta})
	}
	return view
}

// newCombinationView labels whole-product options with an empty value, matching the manifest format.
func newCombinationView(index int, r domain.CombinationRecord, stored bool) combinationView {
	view := combinationView{
		Index:          index,
		Key:            string(r.Key),
		A:              optionLabel(r.OptionA),
		B:              optionLabel(r.OptionB),
		SuggestedPrice: r.SuggestedPrice,
		ImagePath:      r.FinalImage,
	}
	if stored {
		price := r.AdditionalPrice
		view.AdditionalPrice = &price
	}
	return view
}

func optionLabel(opt domain.VariantOption) string {
	if opt.WholeProduct {
		return ""
	}
	return opt.Variant.Value
}

func newSpecialProductView(p domain.CompositeProduct) specialProductView {
	view := specialProductView{
		ID:           p.ID,
		Name:         p.Name,
		Status:       string(p.Status),
		ProductA:     p.BaseProductA,
		ProductB:     p.BaseProductB,
		FinalPrice:   p.FinalPrice,
		Description:  p.Description,
		CreatedAt:    formatTime(p.CreatedAt),
		UpdatedAt:    formatTime(p.UpdatedAt),
		Combinations: make([]combinationView, 0, len(p.Combinations)),
	}
	for i, r := range p.Combinations {
		view.Combinations = append(view.Combinations, newCombinationView(i, r, true))
	}
	return view
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}
