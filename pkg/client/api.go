// Package client uploads invitations to an invite host, choosing between relaying
// through the server and writing straight to storage.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/models"
)

// API is a thin HTTP client for the invite host endpoints.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

func NewAPI(baseURL string, client *http.Client) *API {
	if client == nil {
		client = &http.Client{}
	}
	return &API{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

func (a *API) NewID(ctx context.Context) (string, error) {
	var out models.NewIDResponse
	if err := a.call(ctx, http.MethodGet, "/api/invites/new-id", nil, "", &out); err != nil {
		return "", err
	}
	return out.Id, nil
}

func (a *API) UploadArchive(ctx context.Context, id string, data []byte) (*models.PublishResult, error) {
	body, contentType, err := multipartBody(map[string]string{"id": id}, "zip", "invite.zip", data)
	if err != nil {
		return nil, err
	}
	var out models.PublishResult
	if err := a.call(ctx, http.MethodPost, "/api/upload-zip", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UploadMember(ctx context.Context, id, name string, data []byte) (*models.MemberResult, error) {
	body, contentType, err := multipartBody(map[string]string{"id": id, "name": name}, "file", name, data)
	if err != nil {
		return nil, err
	}
	var out models.MemberResult
	if err := a.call(ctx, http.MethodPost, "/api/upload-one", body, contentType, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Authorize(ctx context.Context, pathname, contentType string) (*models.UploadGrant, error) {
	payload, err := json.Marshal(models.GrantRequest{Pathname: pathname, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	var out models.UploadGrant
	if err := a.call(ctx, http.MethodPost, "/api/blob/upload", bytes.NewReader(payload), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) AuthorizeProbe(ctx context.Context) (*models.UploadGrant, error) {
	var out models.UploadGrant
	if err := a.call(ctx, http.MethodPost, "/api/blob/probe", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Put sends body to a grant URL with the grant's method and headers.
func (a *API) Put(ctx context.Context, g *models.UploadGrant, body io.Reader, size int64) error {
	method := g.Method
	if method == "" {
		method = http.MethodPut
	}
	req, err := http.NewRequestWithContext(ctx, method, g.URL, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	for k, v := range g.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", g.ContentType)
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("direct upload of %s answered %d: %s", g.Pathname, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// call performs a request and decodes a JSON answer into out. Problem answers
// come back as problem.APIError.
func (a *API) call(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr problem.APIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			if apiErr.Status == 0 {
				apiErr.Status = resp.StatusCode
			}
			return apiErr
		}
		return fmt.Errorf("%s %s answered %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func multipartBody(fields map[string]string, fileField, fileName string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	w, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := w.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
