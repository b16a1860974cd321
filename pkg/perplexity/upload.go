package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"regexp"
	"strings"
)

const createUploadPath = "/rest/uploads/create_upload_url?version=" + upstreamVersion + "&source=default"

// cdnImagePathRE rewrites the signed CDN path the upload endpoint returns
// for image assets. Non-image assets keep the plain object URL.
var cdnImagePathRE = regexp.MustCompile(`/private/s--.*?--/v\d+/user_uploads/`)

type uploadTicket struct {
	Fields      map[string]string `json:"fields"`
	S3BucketURL string            `json:"s3_bucket_url"`
	S3ObjectURL string            `json:"s3_object_url"`
}

// uploadFile runs the upstream's two-step upload flow: request a ticket with
// presigned form fields, then POST the bytes as multipart form data to the
// bucket URL. Returns the asset URL to reference in the search payload.
func (c *Client) uploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ticket, err := c.createUploadTicket(ctx, filename, contentType, len(content))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for key, value := range ticket.Fields {
		if err := form.WriteField(key, value); err != nil {
			return "", err
		}
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ticket.S3BucketURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bucket upload http %d: %s", resp.StatusCode, string(body))
	}

	if strings.Contains(ticket.S3ObjectURL, "image/upload") {
		var uploaded struct {
			SecureURL string `json:"secure_url"`
		}
		if err := json.Unmarshal(body, &uploaded); err != nil {
			return "", fmt.Errorf("decode upload response: %w", err)
		}
		return cdnImagePathRE.ReplaceAllString(uploaded.SecureURL, "/private/user_uploads/"), nil
	}
	return ticket.S3ObjectURL, nil
}

func (c *Client) createUploadTicket(ctx context.Context, filename, contentType string, size int) (*uploadTicket, error) {
	payload, err := json.Marshal(map[string]any{
		"content_type": contentType,
		"file_size":    size,
		"filename":     filename,
		"force_image":  false,
		"source":       "default",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+createUploadPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create upload url http %d: %s", resp.StatusCode, string(body))
	}
	var ticket uploadTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, fmt.Errorf("decode upload ticket: %w", err)
	}
	if ticket.S3BucketURL == "" {
		return nil, fmt.Errorf("upload ticket missing bucket url")
	}
	return &ticket, nil
}
