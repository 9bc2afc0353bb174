package seed

import (
	"context"
	"fmt"
	"io"
	"strings"

	"templatestore/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type FileWriter interface {
	UpsertFile(ctx context.Context, f domain.ProductFile) (*domain.ProductFile, error)
}

type CustomerWriter interface {
	Upsert(ctx context.Context, c domain.Customer) (*domain.Customer, error)
}

type CodeWriter interface {
	UpsertBonus(ctx context.Context, c domain.BonusCode) error
	UpsertAffiliate(ctx context.Context, c domain.AffiliateCode) error
	UpsertReferral(ctx context.Context, c domain.ReferralCode) error
}

type BlobWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

type Deps struct {
	Products  ProductWriter
	Files     FileWriter
	Customers CustomerWriter
	Codes     CodeWriter
	Blobs     BlobWriter
}

type productSeed struct {
	Key         string
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	Files       []fileSeed
}

type fileSeed struct {
	Name        string
	ContentType string
	Body        string
}

var products = []productSeed{
	{
		Key:         "pitch-deck",
		SKU:         "TPL-PITCH-DECK",
		Name:        "Startup Pitch Deck",
		Description: "Twelve-slide investor deck in Keynote and PowerPoint",
		PriceCents:  4900,
		Currency:    "USD",
		Files: []fileSeed{
			{Name: "pitch-deck.key", ContentType: "application/x-iwork-keynote-sffkey", Body: "demo keynote"},
			{Name: "pitch-deck.pptx", ContentType: "application/vnd.openxmlformats-officedocument.presentationml.presentation", Body: "demo powerpoint"},
		},
	},
	{
		Key:         "invoice-kit",
		SKU:         "TPL-INVOICE-KIT",
		Name:        "Freelancer Invoice Kit",
		Description: "Invoice and quote templates",
		PriceCents:  1900,
		Currency:    "USD",
		Files: []fileSeed{
			{Name: "invoice-kit.zip", ContentType: "application/zip", Body: "demo zip"},
		},
	},
}

// Apply inserts demo catalog, customers and discount codes for manual
// testing. It is idempotent: every write is an upsert.
func Apply(ctx context.Context, deps Deps) error {
	for _, p := range products {
		if err := seedProduct(ctx, deps, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Key, err)
		}
	}

	owner, err := deps.Customers.Upsert(ctx, domain.Customer{Email: "partner@example.com", FirstName: "Demo", LastName: "Partner"})
	if err != nil {
		return fmt.Errorf("seed customer: %w", err)
	}
	if err := deps.Codes.UpsertBonus(ctx, domain.BonusCode{CodeMeta: domain.CodeMeta{Code: "SAVE20", Active: true}, DiscountPercent: 20}); err != nil {
		return fmt.Errorf("seed bonus code: %w", err)
	}
	if err := deps.Codes.UpsertAffiliate(ctx, domain.AffiliateCode{CodeMeta: domain.CodeMeta{Code: "PARTNER10", Active: true}, OwnerID: owner.ID, CommissionRate: 0.15}); err != nil {
		return fmt.Errorf("seed affiliate code: %w", err)
	}
	if err := deps.Codes.UpsertReferral(ctx, domain.ReferralCode{CodeMeta: domain.CodeMeta{Code: "FRIEND", Active: true}, OwnerID: owner.ID}); err != nil {
		return fmt.Errorf("seed referral code: %w", err)
	}
	return nil
}

func seedProduct(ctx context.Context, deps Deps, p productSeed) error {
	saved, err := deps.Products.Upsert(ctx, domain.Product{
		Key:         p.Key,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Digital:     true,
		Attributes:  map[string]interface{}{},
	})
	if err != nil {
		return err
	}
	for _, f := range p.Files {
		key := "products/" + p.Key + "/" + f.Name
		if deps.Blobs != nil {
			if err := deps.Blobs.Put(ctx, key, strings.NewReader(f.Body), int64(len(f.Body)), f.ContentType); err != nil {
				return fmt.Errorf("store %s: %w", f.Name, err)
			}
		}
		if _, err := deps.Files.UpsertFile(ctx, domain.ProductFile{
			ProductID:   saved.ID,
			FileName:    f.Name,
			ContentType: f.ContentType,
			SizeBytes:   int64(len(f.Body)),
			StorageKey:  key,
		}); err != nil {
			return fmt.Errorf("file %s: %w", f.Name, err)
		}
	}
	return nil
}
