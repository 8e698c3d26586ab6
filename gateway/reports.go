package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/stevemurr/story-sync/report"
)

// ListOptions selects a page of the feed. Zero Page and Size are omitted
// from the query; a nil Location lets the server decide.
type ListOptions struct {
	Page     int
	Size     int
	Location *bool
}

func (o ListOptions) query() string {
	params := url.Values{}
	if o.Page > 0 {
		params.Set("page", strconv.Itoa(o.Page))
	}
	if o.Size > 0 {
		params.Set("size", strconv.Itoa(o.Size))
	}
	if o.Location != nil {
		if *o.Location {
			params.Set("location", "1")
		} else {
			params.Set("location", "0")
		}
	}
	if len(params) == 0 {
		return ""
	}
	return "?" + params.Encode()
}

// ListReports fetches a page of reports. A missing or malformed list in an
// otherwise successful response yields an empty, non-nil slice.
func (c *Client) ListReports(ctx context.Context, opts ListOptions) Result[[]report.Report] {
	var body struct {
		ListStory json.RawMessage `json:"listStory"`
	}
	msg, err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/stories" + opts.query(),
		retry:  true,
	}, &body)
	if err != nil {
		return Result[[]report.Report]{Message: msg, Data: []report.Report{}, Err: err}
	}

	reports := []report.Report{}
	if len(body.ListStory) > 0 {
		var decoded []report.Report
		if err := json.Unmarshal(body.ListStory, &decoded); err != nil {
			c.logger.Warn("ignoring malformed listStory", "error", err)
		} else if decoded != nil {
			reports = decoded
		}
	}
	return success(msg, reports)
}

// GetReport fetches a single report by id.
func (c *Client) GetReport(ctx context.Context, id string) Result[report.Report] {
	if id == "" {
		return failure[report.Report](ErrInvalidInput, "id is required")
	}
	var body struct {
		Story *report.Report `json:"story"`
	}
	msg, err := c.call(ctx, request{
		method: http.MethodGet,
		path:   "/stories/" + url.PathEscape(id),
		retry:  true,
	}, &body)
	if err != nil {
		return fromError[report.Report](msg, err)
	}
	if body.Story == nil || body.Story.ID == "" {
		return failure[report.Report](ErrServerRejected, "story missing from response")
	}
	return success(msg, *body.Story)
}

// CreateReport uploads a new report as multipart form data. Coordinates are
// only sent when set. Without a token the call fails with ErrUnauthenticated
// and nothing is sent.
func (c *Client) CreateReport(ctx context.Context, draft report.Draft) Result[struct{}] {
	if err := draft.Validate(); err != nil {
		return failure[struct{}](ErrInvalidInput, err.Error())
	}
	if _, ok := c.tokens.Token(); !ok {
		return failure[struct{}](ErrUnauthenticated, "not logged in")
	}

	payload, contentType, err := multipartDraft(draft)
	if err != nil {
		return failure[struct{}](ErrInvalidInput, err.Error())
	}
	msg, err := c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/stories",
		body:        payload,
		contentType: contentType,
		requireAuth: true,
	}, nil)
	if err != nil {
		return fromError[struct{}](msg, err)
	}
	return success(msg, struct{}{})
}

func multipartDraft(draft report.Draft) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("description", draft.Description); err != nil {
		return nil, "", err
	}

	name := draft.PhotoName
	if name == "" {
		name = "photo.jpg"
	}
	ctype := draft.PhotoType
	if ctype == "" {
		ctype = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, name))
	h.Set("Content-Type", ctype)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, draft.Photo); err != nil {
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	if draft.Lat != nil {
		if err := w.WriteField("lat", strconv.FormatFloat(*draft.Lat, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}
	if draft.Lon != nil {
		if err := w.WriteField("lon", strconv.FormatFloat(*draft.Lon, 'f', -1, 64)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
