// Package http provides a reference Component implementation backed by
// go-resty/resty, exercising the Component Contract (SPEC_FULL.md
// §4.7) end to end against a real transport dependency. It is
// packaging, not core.
package http

import (
	gocontext "context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sflowg/flowengine/plugin"
)

// Config holds the request component's configuration, decoded via
// plugin.DecodeComponentConfig.
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	Debug       bool          `yaml:"debug" default:"false"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
}

// RequestInput is read from ctx.Data under the keys named below before
// each Process call.
type RequestInput struct {
	URL         string
	Method      string
	Headers     map[string]string
	QueryParams map[string]string
	Body        map[string]any
}

// RequestOutput is what Process writes back to ctx.Data under
// "response".
type RequestOutput struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code"`
	IsError    bool           `json:"is_error"`
	Body       map[string]any `json:"body"`
}

// Component makes an outbound HTTP request per invocation, reading its
// request shape from context data and writing a typed response back.
type Component struct {
	plugin.BaseComponent
	config Config
	client *resty.Client
}

// New constructs an unconfigured Component. Init must run before Setup.
func New(name string) *Component {
	c := &Component{}
	c.BaseComponent = plugin.NewBaseComponent(name)
	return c
}

func (c *Component) Init(rawConfig map[string]any) error {
	if err := c.BaseComponent.Init(rawConfig); err != nil {
		return err
	}
	cfg, err := plugin.DecodeComponentConfig[Config](rawConfig)
	if err != nil {
		return fmt.Errorf("http component config: %w", err)
	}
	c.config = cfg
	c.client = resty.New().
		SetTimeout(c.config.Timeout).
		SetRetryCount(c.config.MaxRetries).
		SetRetryWaitTime(time.Duration(c.config.RetryWaitMS) * time.Millisecond).
		SetDebug(c.config.Debug)
	return nil
}

func (c *Component) ValidateConfig() []string {
	var issues []string
	if c.config.Timeout <= 0 {
		issues = append(issues, "timeout must be positive")
	}
	if c.config.MaxRetries < 0 {
		issues = append(issues, "max_retries must not be negative")
	}
	return issues
}

// Process reads url/method/headers/query_parameters/body from
// ctx.Data, issues the request, and writes the typed response under
// "response".
func (c *Component) Process(ctx *plugin.Context) error {
	if err := ctx.CheckDeadline(); err != nil {
		return err
	}
	return c.do(gocontext.Background(), ctx)
}

// SupportsAsync reports that outbound HTTP requests are safe to run
// under the hard_async timeout mode: a resty request is already
// context-cancellable, so an abandoned call's underlying connection is
// torn down rather than leaked.
func (c *Component) SupportsAsync() bool { return true }

// ProcessAsync is the hard_async entry point (SPEC_FULL.md §5): it runs
// against gocontext so the engine's timer can cancel the in-flight
// request instead of only abandoning the goroutine.
func (c *Component) ProcessAsync(gctx gocontext.Context, ctx *plugin.Context) error {
	return c.do(gctx, ctx)
}

func (c *Component) do(gctx gocontext.Context, ctx *plugin.Context) error {
	input := readRequestInput(ctx)

	response := map[string]any{}
	errorResponse := map[string]any{}

	resp, err := c.client.R().
		SetContext(gctx).
		SetHeaders(input.Headers).
		SetQueryParams(input.QueryParams).
		SetBody(input.Body).
		SetResult(&response).
		SetError(&errorResponse).
		Execute(input.Method, input.URL)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}

	output := RequestOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
	}
	if resp.IsError() {
		output.Body = errorResponse
	} else {
		output.Body = response
	}

	ctx.Set("response", map[string]any{
		"status":      output.Status,
		"status_code": output.StatusCode,
		"is_error":    output.IsError,
		"body":        output.Body,
	})
	return nil
}

func (c *Component) Teardown(ctx *plugin.Context) error {
	return nil
}

func readRequestInput(ctx *plugin.Context) RequestInput {
	input := RequestInput{Method: "GET"}
	if v, ok := ctx.Get("request.url"); ok {
		input.URL, _ = v.(string)
	}
	if v, ok := ctx.Get("request.method"); ok {
		if m, ok := v.(string); ok && m != "" {
			input.Method = m
		}
	}
	if v, ok := ctx.Get("request.headers"); ok {
		input.Headers = toStringMap(v)
	}
	if v, ok := ctx.Get("request.query_parameters"); ok {
		input.QueryParams = toStringMap(v)
	}
	if v, ok := ctx.Get("request.body"); ok {
		if m, ok := v.(map[string]any); ok {
			input.Body = m
		}
	}
	return input
}

func toStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
