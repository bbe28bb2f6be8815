package tiny

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCredential = errors.New("invalid provider credential")

// APIError is an error the API reported inside a 200 response envelope.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
	Class    Classification
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tiny %s: %s (codigo_erro=%d, %s)", e.Endpoint, e.Message, e.Code, e.Class)
}

func (e *APIError) Is(target error) bool {
	return target == ErrInvalidCredential && e.Class == ClassFatalCredential
}

// ChangedSinceLayout is the timestamp format the delta-listing filters accept.
// Checkpoint timestamps are stored in this format so they round-trip directly.
const ChangedSinceLayout = "02/01/2006 15:04:05"

type Page struct {
	Records []map[string]any
	HasMore bool
}

type Options struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxRetries int
	RetryDelay time.Duration
}

// Client wraps the Tiny ERP v2 API: form-encoded POSTs with the token in the
// body, responses wrapped in a retorno envelope. Transient transport failures
// are retried a fixed number of times with a fixed delay.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.tiny.com.br/api2"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// ListProducts fetches one page of the product listing. A non-empty
// changedSince (ChangedSinceLayout) switches the call to delta mode.
func (c *Client) ListProducts(ctx context.Context, page int, changedSince string) (Page, error) {
	params := url.Values{}
	params.Set("pesquisa", "")
	params.Set("pagina", strconv.Itoa(page))
	if changedSince != "" {
		params.Set("dataAlteracao", changedSince)
	}
	return c.list(ctx, "produtos.pesquisa.php", params, "produtos", "produto")
}

// GetProduct fetches one product's detail record. A soft not-found (deleted
// upstream) returns (nil, nil).
func (c *Client) GetProduct(ctx context.Context, id int64) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(id, 10))
	return c.detail(ctx, "produto.obter.php", params, "produto")
}

func (c *Client) ListOrders(ctx context.Context, page int, changedSince string) (Page, error) {
	params := url.Values{}
	params.Set("pagina", strconv.Itoa(page))
	if changedSince != "" {
		params.Set("dataAlteracaoInicial", changedSince)
	}
	return c.list(ctx, "pedidos.pesquisa.php", params, "pedidos", "pedido")
}

func (c *Client) GetOrder(ctx context.Context, id int64) (map[string]any, error) {
	params := url.Values{}
	params.Set("id", strconv.FormatInt(id, 10))
	return c.detail(ctx, "pedido.obter.php", params, "pedido")
}

// ListContacts fetches one page of the contact listing, optionally filtered by
// the contact type discriminator ("V" selects sellers).
func (c *Client) ListContacts(ctx context.Context, page int, typeFilter string) (Page, error) {
	params := url.Values{}
	params.Set("pesquisa", "")
	params.Set("pagina", strconv.Itoa(page))
	if typeFilter != "" {
		params.Set("tipo", typeFilter)
	}
	return c.list(ctx, "contatos.pesquisa.php", params, "contatos", "contato")
}

// CategoryTree fetches the full category tree. The envelope's retorno is the
// node list itself, not a status object, so this bypasses the usual decoding.
func (c *Client) CategoryTree(ctx context.Context) ([]map[string]any, error) {
	body, err := c.post(ctx, "produtos.categorias.arvore.php", url.Values{})
	if err != nil {
		return nil, err
	}
	retorno, ok := body["retorno"]
	if !ok {
		return nil, fmt.Errorf("tiny produtos.categorias.arvore.php: response has no retorno envelope")
	}
	if env, ok := retorno.(map[string]any); ok {
		if err := c.envelopeError("produtos.categorias.arvore.php", env); err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Class == ClassEndOfPages {
				return nil, nil
			}
			return nil, err
		}
	}
	nodes, ok := ExtractRecords(retorno, "categoria")
	if !ok {
		return nil, fmt.Errorf("tiny produtos.categorias.arvore.php: unrecognized tree shape")
	}
	return nodes, nil
}

func (c *Client) list(ctx context.Context, endpoint string, params url.Values, field, wrapper string) (Page, error) {
	env, err := c.callEnvelope(ctx, endpoint, params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Class == ClassEndOfPages {
			// The "no records" error code is one of the two valid
			// end-of-pagination signals, not a failure.
			return Page{}, nil
		}
		return Page{}, err
	}
	raw, present := env[field]
	if !present {
		return Page{}, nil
	}
	records, ok := ExtractRecords(raw, wrapper)
	if !ok {
		return Page{}, fmt.Errorf("tiny %s: unrecognized %s shape", endpoint, field)
	}
	// Empty page and exhausted page counter both terminate pagination;
	// relying on only one of them misses pages on some response types.
	hasMore := len(records) > 0 && intField(env, "pagina") < intField(env, "numero_paginas")
	return Page{Records: records, HasMore: hasMore}, nil
}

func (c *Client) detail(ctx context.Context, endpoint string, params url.Values, wrapper string) (map[string]any, error) {
	env, err := c.callEnvelope(ctx, endpoint, params)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Class == ClassNotFound || apiErr.Class == ClassEndOfPages) {
			return nil, nil
		}
		return nil, err
	}
	if record, ok := env[wrapper].(map[string]any); ok {
		return record, nil
	}
	records, ok := ExtractRecords(env[wrapper], wrapper)
	if !ok || len(records) == 0 {
		return nil, fmt.Errorf("tiny %s: unrecognized %s shape", endpoint, wrapper)
	}
	return records[0], nil
}

func (c *Client) callEnvelope(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	body, err := c.post(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	env, ok := body["retorno"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tiny %s: response has no retorno envelope", endpoint)
	}
	if err := c.envelopeError(endpoint, env); err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Client) envelopeError(endpoint string, env map[string]any) error {
	status, _ := env["status"].(string)
	if status != "Erro" {
		return nil
	}
	code := intField(env, "codigo_erro")
	message := errorMessage(env)
	return &APIError{
		Endpoint: endpoint,
		Code:     code,
		Message:  message,
		Class:    Classify(code, message),
	}
}

func (c *Client) post(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", c.token)
	form.Set("formato", "json")
	for key, values := range params {
		for _, value := range values {
			form.Add(key, value)
		}
	}
	requestURL := c.baseURL + "/" + endpoint

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("tiny %s: %w", endpoint, err)
		}

		var body map[string]any
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("tiny %s: status %d after %d attempts", endpoint, resp.StatusCode, attempt+1)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("tiny %s: unexpected status %d", endpoint, resp.StatusCode)
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("tiny %s: decode response: %w", endpoint, decodeErr)
		}
		return body, nil
	}
}

// intField tolerates the API returning counters as numbers or strings.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func errorMessage(env map[string]any) string {
	list, ok := env["erros"].([]any)
	if !ok {
		if s, ok := env["erros"].(string); ok {
			return s
		}
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			parts = append(parts, v)
		case map[string]any:
			if s, ok := v["erro"].(string); ok {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "; ")
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
