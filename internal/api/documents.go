package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

const (
	fromSpreadsheetPath = "/pdf/from-excel"
	fromOrderPath       = "/pdf/from-data"
)

// FromSpreadsheet uploads a spreadsheet and returns the generated document.
// The server also creates an order from the sheet's first data row. Uploads
// are never retried: the body is consumed and the call is not idempotent.
func (c *Client) FromSpreadsheet(ctx context.Context, name string, r io.Reader, sheet string) ([]byte, error) {
	if r == nil {
		return nil, Validation("no spreadsheet selected")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, Validation("building upload: %v", err)
	}

	n, err := io.Copy(part, r)
	if err != nil {
		return nil, Validation("reading spreadsheet %s: %v", name, err)
	}

	if sheet != "" {
		if err := mw.WriteField("sheet", sheet); err != nil {
			return nil, Validation("building upload: %v", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, Validation("building upload: %v", err)
	}

	c.logger.Info("uploading spreadsheet",
		slog.String("name", filepath.Base(name)),
		slog.String("sheet", sheet),
		slog.Int64("size", n),
	)

	p, err := c.Call(ctx, Request{
		Method:      http.MethodPost,
		Path:        fromSpreadsheetPath,
		Body:        &buf,
		ContentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	return p.Binary()
}

// FromOrder renders an existing order as a document. Nothing is stored
// server-side.
func (c *Client) FromOrder(ctx context.Context, o Order) ([]byte, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return nil, Validation("encoding order %d: %v", o.ID, err)
	}

	c.logger.Debug("rendering order document", slog.Int64("order_id", o.ID))

	p, err := c.Call(ctx, Request{
		Method: http.MethodPost,
		Path:   fromOrderPath,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return nil, err
	}

	doc, err := p.Binary()
	if err != nil {
		return nil, fmt.Errorf("rendering order %d: %w", o.ID, err)
	}

	return doc, nil
}
