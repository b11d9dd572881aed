package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/models"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TraceAttributeEntityType = "matrikkel.entity-type"
	TraceAttributeRelation   = "matrikkel.relation"
	TraceAttributeIDCount    = "matrikkel.id-count"
)

var tracer = otel.Tracer("matrikkel-registry-client")

// HTTPClient is a Client speaking JSON over HTTP to the registry gateway.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	debug      bool
}

var _ Client = (*HTTPClient)(nil)

// Timeout sets the per-request timeout.
func Timeout(d time.Duration) func(*HTTPClient) {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// Debug includes response bodies in protocol errors.
func Debug(enabled bool) func(*HTTPClient) {
	return func(c *HTTPClient) {
		c.debug = enabled
	}
}

// NewHTTPClient creates a client for the registry gateway at baseURL.
func NewHTTPClient(baseURL string, options ...func(*HTTPClient)) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

type listRequest struct {
	EntityType models.EntityType `json:"entityType"`
	AfterID    *int64            `json:"afterId"`
	Filter     json.RawMessage   `json:"filter,omitempty"`
	MaxCount   int               `json:"maxCount"`
}

type relationRequest struct {
	OwnerIDs []int64 `json:"ownerIds"`
}

type fetchRequest struct {
	EntityType    models.EntityType `json:"entityType"`
	IDs           []int64           `json:"ids"`
	IgnoreMissing bool              `json:"ignoreMissing"`
}

func (c *HTTPClient) ListAfterCursor(ctx context.Context, entity models.EntityType, after *int64, filter Filter, maxCount int) (objects []Object, err error) {
	ctx, span := tracer.Start(ctx, "list-after-cursor",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, string(entity))),
	)
	defer func() { endSpan(span, err) }()

	req := listRequest{EntityType: entity, AfterID: after, MaxCount: maxCount}
	if filter != NoFilter {
		if !json.Valid([]byte(filter)) {
			req.Filter, _ = json.Marshal(string(filter))
		} else {
			req.Filter = json.RawMessage(filter)
		}
	}

	body, err := c.post(ctx, "/nedlastning/objekter", req)
	if err != nil {
		return nil, err
	}
	return c.decodeObjects(entity, body)
}

func (c *HTTPClient) FindRelated(ctx context.Context, rel models.Relation, ownerIDs []int64) (related map[int64][]int64, err error) {
	ctx, span := tracer.Start(ctx, "find-related",
		trace.WithAttributes(
			attribute.String(TraceAttributeRelation, rel.Name),
			attribute.Int(TraceAttributeIDCount, len(ownerIDs)),
		),
	)
	defer func() { endSpan(span, err) }()

	body, err := c.post(ctx, "/relasjoner/"+url.PathEscape(rel.Name), relationRequest{OwnerIDs: ownerIDs})
	if err != nil {
		return nil, err
	}

	var raw map[string][]int64
	if err = json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		err = c.protocolError("relation response", body, err)
		return nil, err
	}

	related = make(map[int64][]int64, len(raw))
	for key, ids := range raw {
		owner, perr := strconv.ParseInt(key, 10, 64)
		if perr != nil {
			err = fmt.Errorf("%w: relation owner key %q is not an id", ErrProtocol, key)
			return nil, err
		}
		related[owner] = ids
	}
	return related, nil
}

func (c *HTTPClient) FetchByIDs(ctx context.Context, entity models.EntityType, ids []int64) ([]Object, error) {
	return c.fetch(ctx, entity, ids, false)
}

func (c *HTTPClient) FetchByIDsIgnoreMissing(ctx context.Context, entity models.EntityType, ids []int64) ([]Object, error) {
	return c.fetch(ctx, entity, ids, true)
}

func (c *HTTPClient) fetch(ctx context.Context, entity models.EntityType, ids []int64, ignoreMissing bool) (objects []Object, err error) {
	ctx, span := tracer.Start(ctx, "fetch-by-ids",
		trace.WithAttributes(
			attribute.String(TraceAttributeEntityType, string(entity)),
			attribute.Int(TraceAttributeIDCount, len(ids)),
			attribute.Bool("matrikkel.ignore-missing", ignoreMissing),
		),
	)
	defer func() { endSpan(span, err) }()

	body, err := c.post(ctx, "/store/objekter", fetchRequest{EntityType: entity, IDs: ids, IgnoreMissing: ignoreMissing})
	if ignoreMissing && errors.Is(err, ErrNotFound) {
		// Some gateways answer 404 when none of the ids exist.
		return []Object{}, nil
	}
	if err != nil {
		return nil, err
	}
	return c.decodeObjects(entity, body)
}

func (c *HTTPClient) FetchOne(ctx context.Context, entity models.EntityType, id int64) (object Object, err error) {
	ctx, span := tracer.Start(ctx, "fetch-one",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, string(entity))),
	)
	defer func() { endSpan(span, err) }()

	endpoint := c.baseURL + "/store/objekter/" + url.PathEscape(string(entity)) + "/" + strconv.FormatInt(id, 10)
	body, err := c.call(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Object{}, err
	}

	objects, err := c.decodeObjects(entity, body)
	if err != nil {
		return Object{}, err
	}
	if len(objects) != 1 {
		err = fmt.Errorf("%w: expected one %s object for id %d, got %d", ErrProtocol, entity, id, len(objects))
		return Object{}, err
	}
	return objects[0], nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.call(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
}

func (c *HTTPClient) call(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrProtocol)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrTransport)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrTransport)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("registry returned status code %d (%w)", resp.StatusCode, ErrTransport)
	case resp.StatusCode != http.StatusOK:
		return nil, c.protocolError(fmt.Sprintf("status code %d", resp.StatusCode), respBody, nil)
	}

	return respBody, nil
}

// decodeObjects accepts a single object, a list of objects or null, and
// always returns a list.
func (c *HTTPClient) decodeObjects(entity models.EntityType, body []byte) ([]Object, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Object{}, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, c.protocolError("malformed JSON", body, nil)
	}

	var elements []gjson.Result
	parsed := gjson.ParseBytes(trimmed)
	switch {
	case parsed.IsArray():
		elements = parsed.Array()
	case parsed.IsObject():
		elements = []gjson.Result{parsed}
	default:
		return nil, c.protocolError("expected object or list", body, nil)
	}

	objects := make([]Object, 0, len(elements))
	for _, el := range elements {
		if !el.IsObject() {
			return nil, c.protocolError("list element is not an object", body, nil)
		}
		id := el.Get("id")
		if id.Type != gjson.Number || id.Int() <= 0 {
			return nil, c.protocolError("object without a positive id", body, nil)
		}
		objects = append(objects, Object{
			ID:   id.Int(),
			Type: entity,
			Raw:  json.RawMessage(el.Raw),
		})
	}
	return objects, nil
}

func (c *HTTPClient) protocolError(what string, body []byte, cause error) error {
	msg := what
	if cause != nil {
		msg += ": " + cause.Error()
	}
	if c.debug && len(body) < 1000 {
		msg += " (body: " + string(body) + ")"
	}
	return fmt.Errorf("%s (%w)", msg, ErrProtocol)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
