// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/SoftbearStudios/cartograph/server/failure"
	"github.com/SoftbearStudios/cartograph/server/guide"
	"github.com/SoftbearStudios/cartograph/server/request"
	jsoniter "github.com/json-iterator/go"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-image-1"
	DefaultQuality = "low"

	// DefaultTemplate frames the style prompt. %s is replaced by the prompt.
	DefaultTemplate = "Generate a top-down map inspired by the structure of the reference image. " +
		"Do not recreate the reference image exactly, but use it as guidance for layout, shapes, and color placement. " +
		"Include rich visual detail, depth, and texture. The description for the style of the map to generate is %s. " +
		"Do not include text, letters, or symbols of any kind."

	// DefaultFillTemplate frames the style prompt of masked requests.
	DefaultFillTemplate = "Fill in the missing portion of the top-down map tile. " +
		"Use the color in the reference image as guidance. Try to keep the currently populated portion of the image as unedited as possible. " +
		"The description for the style of the map tile is %s, which should be kept consistent."

	// Base64 PNGs at 1024x1024 are a few megabytes.
	maxResponseSize = 64 << 20
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenAI calls the images/edits endpoint with the guide as the reference image.
// Requests with a mask are sent with it and high input fidelity.
type OpenAI struct {
	APIKey       string
	BaseURL      string
	Model        string
	Quality      string
	Template     string
	FillTemplate string
	Client       *http.Client
}

// NewOpenAI returns a client with default settings.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		APIKey:       apiKey,
		BaseURL:      DefaultBaseURL,
		Model:        DefaultModel,
		Quality:      DefaultQuality,
		Template:     DefaultTemplate,
		FillTemplate: DefaultFillTemplate,
		Client:       http.DefaultClient,
	}
}

type (
	imagesResponse struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}

	errorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
)

// Prompt returns the text sent for a style prompt.
func (o *OpenAI) Prompt(style string) string {
	return frame(o.Template, style)
}

// FillPrompt returns the text sent for a style prompt with a mask.
func (o *OpenAI) FillPrompt(style string) string {
	return frame(o.FillTemplate, style)
}

func frame(template, style string) string {
	if template == "" || !strings.Contains(template, "%s") {
		return style
	}
	return fmt.Sprintf(template, style)
}

func (o *OpenAI) url(path string) string {
	base := o.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimSuffix(base, "/") + path
}

func (o *OpenAI) client() *http.Client {
	if o.Client == nil {
		return http.DefaultClient
	}
	return o.Client
}

func (o *OpenAI) Generate(ctx context.Context, req *request.Request) (*guide.Image, error) {
	guidePNG, err := req.GuidePNG()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	model := o.Model
	if model == "" {
		model = DefaultModel
	}
	mask := req.MaskPNG()
	prompt, fidelity := o.Prompt(req.Prompt()), ""
	if mask != nil {
		prompt, fidelity = o.FillPrompt(req.Prompt()), "high"
	}

	fields := [...][2]string{
		{"model", model},
		{"prompt", prompt},
		{"n", "1"},
		{"size", strconv.Itoa(req.Width()) + "x" + strconv.Itoa(req.Height())},
		{"quality", o.Quality},
		{"input_fidelity", fidelity},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := w.WriteField(field[0], field[1]); err != nil {
			return nil, err
		}
	}

	if err = writePNG(w, "image", "guide.png", guidePNG); err != nil {
		return nil, err
	}
	if mask != nil {
		if err = writePNG(w, "mask", "mask.png", mask); err != nil {
			return nil, err
		}
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url("/images/edits"), &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	data, err := o.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	var result imagesResponse
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, failure.External(failure.MalformedResponse, err)
	}
	if len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return nil, failure.External(failure.MalformedResponse, errors.New("no image in response"))
	}

	raw, err := base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
	if err != nil {
		return nil, failure.External(failure.MalformedResponse, err)
	}
	img, err := guide.DecodePNG(raw)
	if err != nil {
		return nil, failure.External(failure.MalformedResponse, err)
	}
	if err = CheckDimensions(req, img); err != nil {
		return nil, err
	}
	return img, nil
}

func writePNG(w *multipart.Writer, name, filename string, data []byte) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, name, filename))
	header.Set("Content-Type", "image/png")
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

// Check verifies the API key by listing models.
func (o *OpenAI) Check(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url("/models"), nil)
	if err != nil {
		return err
	}
	_, err = o.do(ctx, httpReq)
	return err
}

// do sends an authorized request and returns the body of a 2xx response.
func (o *OpenAI) do(ctx context.Context, httpReq *http.Request) ([]byte, error) {
	httpReq.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client().Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, failure.External(failure.Network, err)
	}
	defer resp.Body.Close()

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, failure.External(failure.Network, err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp.StatusCode, data)
	}
	return data, nil
}

// statusError classifies a non-2xx response.
func statusError(status int, body []byte) error {
	var e errorResponse
	_ = json.Unmarshal(body, &e)

	message := e.Error.Message
	if message == "" {
		message = http.StatusText(status)
	}
	err := fmt.Errorf("status %d: %s", status, message)

	switch {
	case status == http.StatusTooManyRequests:
		if e.Error.Code == "insufficient_quota" || e.Error.Type == "insufficient_quota" {
			return failure.External(failure.QuotaExceeded, err)
		}
		return failure.External(failure.Network, err)
	case status >= 500:
		return failure.External(failure.Network, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// Bad key or an organization without image access.
		return failure.Configuration("apiKey", "%s", err)
	case status >= 400:
		// moderation_blocked, content_policy_violation or bad parameters.
		return failure.External(failure.PolicyRejected, err)
	default:
		return failure.External(failure.MalformedResponse, err)
	}
}
