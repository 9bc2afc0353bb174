package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"path"
	"strconv"
	"strings"

	"templatestore/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

type FileWriter interface {
	UpsertFile(ctx context.Context, f domain.ProductFile) (*domain.ProductFile, error)
}

type BlobWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// CSVImporter reads a catalog CSV of templates and their downloadable files.
// A row with a key starts a product; rows without a key add more files to
// the product above them.
type CSVImporter struct {
	reader   *csv.Reader
	products ProductWriter
	files    FileWriter
	blobs    BlobWriter
	source   fs.FS
}

// NewCSVImporter reads file contents from source, relative to the file.path
// column. A nil source imports catalog rows only.
func NewCSVImporter(r io.Reader, products ProductWriter, files FileWriter, blobs BlobWriter, source fs.FS) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:   csvr,
		products: products,
		files:    files,
		blobs:    blobs,
		source:   source,
	}
}

type Stats struct {
	Products int
	Files    int
}

type csvRow struct {
	ID       string
	Key      string
	Name     string
	Desc     string
	SKU      string
	Cents    int64
	Currency string
	Digital  bool
	Files    []fileRow
}

type fileRow struct {
	Name        string
	Path        string
	ContentType string
}

// Run parses CSV rows and upserts products grouped by product key.
func (i *CSVImporter) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	headers, err := i.reader.Read()
	if err != nil {
		return stats, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["key"]; !ok {
		return stats, errors.New("missing key column")
	}

	var current *csvRow
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read row: %w", err)
		}

		row, err := parseRow(record, index)
		if err != nil {
			return stats, err
		}
		if row == nil {
			continue
		}

		if row.Key != "" {
			if current != nil {
				if err := i.save(ctx, current, &stats); err != nil {
					return stats, err
				}
			}
			current = row
			continue
		}

		// Continuation rows carry extra files for the current product.
		if current != nil {
			current.Files = append(current.Files, row.Files...)
		}
	}

	if current != nil {
		if err := i.save(ctx, current, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow, stats *Stats) error {
	if row.Key == "" || row.Name == "" || row.SKU == "" || row.Cents <= 0 || row.Currency == "" {
		return fmt.Errorf("invalid product row (missing required fields) for key %q", row.Key)
	}
	if row.ID != "" && len(row.ID) != 36 {
		return fmt.Errorf("invalid id for key %q: %s", row.Key, row.ID)
	}
	if len(row.Files) > 0 && !row.Digital {
		return fmt.Errorf("product %q has files but is not digital", row.Key)
	}

	p, err := i.products.Upsert(ctx, domain.Product{
		ID:          row.ID,
		Key:         row.Key,
		SKU:         row.SKU,
		Name:        row.Name,
		Description: row.Desc,
		PriceCents:  row.Cents,
		Currency:    strings.ToUpper(row.Currency),
		Digital:     row.Digital,
		Attributes:  map[string]interface{}{},
	})
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", row.Key, err)
	}
	stats.Products++

	for _, f := range row.Files {
		if err := i.saveFile(ctx, p, f); err != nil {
			return err
		}
		stats.Files++
	}
	return nil
}

func (i *CSVImporter) saveFile(ctx context.Context, p *domain.Product, f fileRow) error {
	if i.files == nil {
		return fmt.Errorf("product %q lists files but no file writer is configured", p.Key)
	}
	key := "products/" + p.Key + "/" + f.Name
	contentType := f.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(f.Name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var size int64
	if f.Path != "" && i.source != nil && i.blobs != nil {
		n, err := i.upload(ctx, key, f.Path, contentType)
		if err != nil {
			return fmt.Errorf("upload %q for %q: %w", f.Path, p.Key, err)
		}
		size = n
	}

	if _, err := i.files.UpsertFile(ctx, domain.ProductFile{
		ProductID:   p.ID,
		FileName:    f.Name,
		ContentType: contentType,
		SizeBytes:   size,
		StorageKey:  key,
	}); err != nil {
		return fmt.Errorf("upsert file %q for %q: %w", f.Name, p.Key, err)
	}
	return nil
}

func (i *CSVImporter) upload(ctx context.Context, key, name, contentType string) (int64, error) {
	fh, err := i.source.Open(name)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	info, err := fh.Stat()
	if err != nil {
		return 0, err
	}
	if err := i.blobs.Put(ctx, key, fh, info.Size(), contentType); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) (*csvRow, error) {
	key := pick(record, index, "key")
	fileName := pick(record, index, "file.name")
	filePath := pick(record, index, "file.path")
	if fileName == "" && filePath != "" {
		fileName = path.Base(filePath)
	}

	if key == "" && fileName == "" {
		return nil, nil
	}

	row := &csvRow{
		ID:       pick(record, index, "id"),
		Key:      key,
		Name:     pick(record, index, "name"),
		Desc:     pick(record, index, "description"),
		SKU:      pick(record, index, "sku"),
		Currency: pick(record, index, "currency"),
		Digital:  true,
	}
	if v := pick(record, index, "price_cents"); v != "" {
		cents, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price_cents for key %q: %s", key, v)
		}
		row.Cents = cents
	}
	if v := pick(record, index, "digital"); v != "" {
		digital, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid digital flag for key %q: %s", key, v)
		}
		row.Digital = digital
	}
	if fileName != "" {
		row.Files = []fileRow{{Name: fileName, Path: filePath, ContentType: pick(record, index, "file.content_type")}}
	}
	return row, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
