package hub

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
	"time"

	"github.com/sethvargo/go-retry"
)

// Client talks to the Hub's core API (analyses, analysis files) and storage
// API (buckets, bucket files). Transient failures are retried with capped
// exponential backoff; 4xx answers are surfaced immediately.
type Client struct {
	coreBaseURL    string
	storageBaseURL string
	tokens         TokenSource
	httpClient     *http.Client

	retryBase     time.Duration
	retryMaxTries uint64
}

func NewClient(coreBaseURL, storageBaseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		coreBaseURL:    coreBaseURL,
		storageBaseURL: storageBaseURL,
		tokens:         tokens,
		httpClient:     httpClient,
		retryBase:      500 * time.Millisecond,
		retryMaxTries:  3,
	}
}

// GetAnalysis fetches an analysis by id; common callers want ProjectID.
func (c *Client) GetAnalysis(ctx context.Context, analysisID string) (*Analysis, error) {
	var a Analysis
	err := c.doJSON(ctx, http.MethodGet, c.coreBaseURL+"/analyses/"+analysisID, nil, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetBucket resolves a storage bucket by name. The Hub provisions buckets
// per analysis asynchronously, so a 404 here can be transient for a freshly
// created analysis; the caller decides whether to retry the whole delivery.
func (c *Client) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	var b Bucket
	err := c.doJSON(ctx, http.MethodGet, c.storageBaseURL+"/buckets/"+name, nil, &b)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// UploadToBucket pushes one file into the named bucket via the storage
// API's multipart endpoint and returns the created bucket file.
func (c *Client) UploadToBucket(ctx context.Context, bucketName, fileName string, data []byte, contentType string) (*BucketFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	hdr.Set("Content-Type", contentType)

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	var out listResponse[BucketFile]
	err = c.do(ctx, http.MethodPost, c.storageBaseURL+"/buckets/"+bucketName+"/upload",
		buf.Bytes(), mw.FormDataContentType(), &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) != 1 {
		return nil, fmt.Errorf("hub created %d bucket files for one upload", len(out.Data))
	}
	return &out.Data[0], nil
}

// FindBucketFile looks up a bucket file by name within a bucket. A retried
// delivery uses it to recover the id of a file a previous attempt uploaded
// before its acknowledgement was lost.
func (c *Client) FindBucketFile(ctx context.Context, bucketID, name string) (*BucketFile, error) {
	q := url.Values{}
	q.Set("filter[bucket_id]", bucketID)
	q.Set("filter[name]", name)

	var out listResponse[BucketFile]
	err := c.doJSON(ctx, http.MethodGet, c.storageBaseURL+"/bucket-files?"+q.Encode(), nil, &out)
	if err != nil {
		return nil, err
	}
	for i := range out.Data {
		if out.Data[i].Name == name {
			return &out.Data[i], nil
		}
	}
	return nil, &Error{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("bucket file %s not found in bucket %s", name, bucketID),
	}
}

// LinkFileToAnalysis registers an uploaded bucket file as an analysis file
// of the given kind (RESULT or TEMP).
func (c *Client) LinkFileToAnalysis(ctx context.Context, analysisID, bucketFileID, name, kind string) (*AnalysisFile, error) {
	payload := map[string]any{
		"analysis_id":    analysisID,
		"type":           kind,
		"bucket_file_id": bucketFileID,
		"name":           name,
		"root":           true,
	}

	var af AnalysisFile
	err := c.doJSON(ctx, http.MethodPost, c.coreBaseURL+"/analysis-files", payload, &af)
	if err != nil {
		return nil, err
	}
	return &af, nil
}

// StreamBucketFile returns the content of a bucket file. The caller owns
// the reader. Not retried: a broken stream surfaces to the HTTP caller.
func (c *Client) StreamBucketFile(ctx context.Context, bucketFileID string) (io.ReadCloser, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.storageBaseURL+"/bucket-files/"+bucketFileID+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("build hub request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream bucket file %s: %w", bucketFileID, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}

// doJSON marshals payload (if any) and runs the request with retries.
func (c *Client) doJSON(ctx context.Context, method, url string, payload, out any) error {
	var body []byte
	contentType := ""
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal hub request: %w", err)
		}
		contentType = "application/json"
	}
	return c.do(ctx, method, url, body, contentType, out)
}

// do runs one authenticated request with capped exponential backoff on
// network failures and Hub 5xx answers.
func (c *Client) do(ctx context.Context, method, url string, body []byte, contentType string, out any) error {
	backoff := retry.NewExponential(c.retryBase)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithMaxRetries(c.retryMaxTries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.doOnce(ctx, method, url, body, contentType, out)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, contentType string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build hub request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode hub response: %w", err)
		}
	}
	return nil
}
