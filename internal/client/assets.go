package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"portfolioalerts/internal/models"

	"github.com/pkg/errors"
)

// AssetInput is the body of the add and update asset calls.
type AssetInput struct {
	ID           int64   `json:"id,omitempty"`
	Name         string  `json:"name,omitempty"`
	Abbreviation string  `json:"abbreviation,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
}

type assetResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type searchAssetsResponse struct {
	Assets []models.AssetMatch `json:"assets"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// postAsset handles the success envelope: a 2xx answer with success=false is
// still a failure.
func (c *Client) postAsset(ctx context.Context, path string, in AssetInput) (string, error) {
	var resp assetResponse
	if err := c.doJSON(ctx, http.MethodPost, path, nil, in, &resp); err != nil {
		return "", err
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		return "", &APIError{Status: http.StatusOK, Message: msg}
	}
	return resp.Message, nil
}

// AddAsset adds a position. The amount must be positive.
func (c *Client) AddAsset(ctx context.Context, in AssetInput) (string, error) {
	if !(in.Amount > 0) {
		return "", &ValidationError{Field: "amount", Reason: "Please enter a valid amount."}
	}
	return c.postAsset(ctx, "/add_asset", in)
}

// UpdateAsset changes the amount (and optionally the name) of a position.
func (c *Client) UpdateAsset(ctx context.Context, in AssetInput) (string, error) {
	if in.ID <= 0 {
		return "", &ValidationError{Field: "id", Reason: "Asset ID is missing."}
	}
	if !(in.Amount > 0) {
		return "", &ValidationError{Field: "amount", Reason: "Please enter a valid amount."}
	}
	return c.postAsset(ctx, "/update_asset", in)
}

// DeleteAsset removes a position.
func (c *Client) DeleteAsset(ctx context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", &ValidationError{Field: "id", Reason: "Asset ID is missing."}
	}
	return c.postAsset(ctx, "/delete_asset", AssetInput{ID: id})
}

// SearchAssets finds positions whose name contains query.
func (c *Client) SearchAssets(ctx context.Context, query string) ([]models.AssetMatch, error) {
	var resp searchAssetsResponse
	q := url.Values{"query": {query}}
	if err := c.doJSON(ctx, http.MethodGet, "/search_assets", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Assets, nil
}

// UploadCSV posts a portfolio export as multipart form field "file" and
// returns the server's message.
func (c *Client) UploadCSV(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", errors.Wrap(err, "copy csv")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "close multipart writer")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload_csv", nil, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp messageResponse
	if err := c.send(req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	return resp.Message, nil
}

// LoginPath is where a client goes after logging out.
const LoginPath = "/login"

// Logout ends the session and returns the server's message together with
// the page to redirect to.
func (c *Client) Logout(ctx context.Context) (message, redirect string, err error) {
	var resp messageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/logout", nil, nil, &resp); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(resp.Message), LoginPath, nil
}
