package operations

import (
	"context"
	"errors"
	"log/slog"

	"github.com/JonMunkholm/csvimport/internal/core"
)

const (
	CatalogPage = "catalog"
	ProductsID  = "products"
)

var productStatuses = []string{"draft", "publish", "private"}

// ProductsOperation imports catalog products keyed by SKU.
func ProductsOperation(repo ProductRepository) core.OperationDefinition {
	return core.OperationDefinition{
		PageID:        CatalogPage,
		ID:            ProductsID,
		Label:         "Products",
		Description:   "Create or update catalog products by SKU.",
		SkipEmptyRows: true,
		Fields: []core.FieldDefinition{
			{Key: "sku", Label: "SKU", Type: core.TypeString, Required: true, Unique: true, Uppercase: true,
				Pattern: `^[A-Z0-9][A-Z0-9_-]*$`, MaxLength: intPtr(32), Group: "General"},
			{Key: "name", Label: "Name", Type: core.TypeString, Required: true, MaxLength: intPtr(200), Group: "General"},
			{Key: "price", Label: "Price", Type: core.TypeNumber, Required: true, Minimum: floatPtr(0.01), Group: "Pricing"},
			{Key: "currency", Label: "Currency", Type: core.TypeCurrency, Default: "USD", Group: "Pricing"},
			{Key: "stock", Label: "Stock", Type: core.TypeInteger, Default: "0", Minimum: floatPtr(0), Group: "Inventory"},
			{Key: "active", Label: "Active", Type: core.TypeBoolean, Default: "yes", Group: "Inventory"},
			{Key: "tags", Label: "Tags", Type: core.TypeString, Separator: ",", MaxLength: intPtr(40), Group: "Taxonomy"},
			{Key: "category", Label: "Category", Type: core.TypeTerm, Taxonomy: "product_cat", Create: true,
				Separator: "|", Group: "Taxonomy"},
			{Key: "brand", Label: "Brand", Type: core.TypePost, PostType: "brand", Group: "Relations"},
			{Key: "owner", Label: "Owner", Type: core.TypeUser, Group: "Relations"},
			{Key: "image", Label: "Image", Type: core.TypeAttachment, Sideload: true, Group: "Media"},
			{Key: "url", Label: "Product URL", Type: core.TypeURL, Group: "Media"},
			{Key: "support_email", Label: "Support Email", Type: core.TypeEmail, Lowercase: true, Group: "General"},
			{Key: "status", Label: "Status", Type: core.TypeString, Default: "publish", Lowercase: true,
				Options: productStatuses, Group: "General"},
		},
		Validator: core.RowValidatorFunc(validateProduct),
		Processor: &productProcessor{repo: repo},
		Hooks:     &productHooks{repo: repo},
	}
}

func validateProduct(ctx context.Context, row core.ProcessedRow) error {
	if str(row, "status") == "private" && !present(row, "owner") {
		return errors.New("Private products need an owner.")
	}
	return nil
}

type productProcessor struct {
	repo ProductRepository
}

func (p *productProcessor) ProcessRow(ctx context.Context, row core.ProcessedRow, meta core.RowMeta) (core.Outcome, error) {
	return p.repo.UpsertBySKU(ctx, Product{
		SKU:          str(row, "sku"),
		Name:         str(row, "name"),
		Price:        num(row, "price"),
		Currency:     str(row, "currency"),
		Stock:        integer(row, "stock"),
		Active:       boolean(row, "active"),
		Tags:         strList(row, "tags"),
		CategoryIDs:  entityIDs(row, "category"),
		BrandID:      entityID(row, "brand"),
		OwnerID:      entityID(row, "owner"),
		ImageID:      entityID(row, "image"),
		URL:          str(row, "url"),
		SupportEmail: str(row, "support_email"),
		Status:       str(row, "status"),
	})
}

type productHooks struct {
	repo ProductRepository
}

func (h *productHooks) BeforeImport(ctx context.Context, run core.RunInfo) error {
	if run.Total == 0 {
		return errors.New("the file contains no product rows")
	}
	return nil
}

func (h *productHooks) AfterImport(ctx context.Context, key core.RunKey, st core.RunStats) {
	count, err := h.repo.CountProducts(ctx)
	if err != nil {
		slog.Warn("count products after import", "error", err)
		return
	}
	slog.Info("product import finished",
		"operation", key.String(),
		"created", st.Created,
		"updated", st.Updated,
		"catalog_size", count,
	)
}
