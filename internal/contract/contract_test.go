package contract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/consumer-contracts/internal/hooks"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
	"github.com/ShayCichocki/consumer-contracts/internal/retry"
	"github.com/ShayCichocki/consumer-contracts/internal/schema"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// statusClient answers with the given statuses in order, repeating the
// last one, and counts requests.
type statusClient struct {
	statuses []int
	calls    atomic.Int32
}

func (s *statusClient) Execute(ctx context.Context, req transport.Request) (*transport.Response, error) {
	n := int(s.calls.Add(1)) - 1
	if n >= len(s.statuses) {
		n = len(s.statuses) - 1
	}
	return &transport.Response{Status: s.statuses[n]}, nil
}

func statusOnly(codes ...int) schema.Schema {
	return schema.Response(schema.ResponseSpec{Status: schema.Status(codes...)})
}

func baseOptions(client transport.Client) Options {
	return Options{
		Name:     "Name",
		Consumer: "Consumer",
		Request:  &transport.Request{URL: "http://api.example.com/"},
		Response: statusOnly(200),
		Client:   client,
		Sleeper:  retry.NewVirtualSleeper(),
	}
}

func mustNew(t *testing.T, opts Options) *Contract {
	t.Helper()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_MissingRequired(t *testing.T) {
	tests := []struct {
		key    string
		mutate func(*Options)
	}{
		{"name", func(o *Options) { o.Name = "" }},
		{"consumer", func(o *Options) { o.Consumer = "" }},
		{"request", func(o *Options) { o.Request = nil }},
		{"response", func(o *Options) { o.Response = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			opts := baseOptions(nil)
			tt.mutate(&opts)
			_, err := New(opts)
			if err == nil {
				t.Fatal("expected error")
			}
			want := "Invalid contract: Missing required property [" + tt.key + "]"
			if err.Error() != want {
				t.Errorf("Error = %q, want %q", err.Error(), want)
			}
			if !errors.Is(err, ErrInvalidContract) {
				t.Error("error does not match ErrInvalidContract")
			}
			if KindOf(err) != KindConfiguration {
				t.Errorf("KindOf = %q, want %q", KindOf(err), KindConfiguration)
			}
		})
	}
}

func TestNew_FirstMissingWins(t *testing.T) {
	_, err := New(Options{})
	if err == nil || err.Error() != "Invalid contract: Missing required property [name]" {
		t.Errorf("Error = %v", err)
	}
}

func TestNew_MergesValidationOptions(t *testing.T) {
	opts := baseOptions(nil)
	opts.ValidationOptions = schema.Options{AllowUnknown: schema.Bool(false)}
	c := mustNew(t, opts)

	want := schema.Options{AllowUnknown: schema.Bool(false), Presence: schema.PresenceRequired, Convert: schema.Bool(true)}
	if diff := cmp.Diff(want, c.ValidationOptions()); diff != "" {
		t.Errorf("ValidationOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_PolicySelection(t *testing.T) {
	opts := baseOptions(nil)
	opts.Retries, opts.RetryDelay = 3, time.Second
	if got := mustNew(t, opts).Policy(); got != (retry.Fixed{Retries: 3, Delay: time.Second}) {
		t.Errorf("Policy = %+v, want fixed", got)
	}

	opts.RetryPolicy = &retry.Dynamic{MaxRetries: 5}
	if got := mustNew(t, opts).Policy(); got.Budget() != 5 {
		t.Errorf("Policy budget = %d, want dynamic budget 5", got.Budget())
	}
}

func TestValidate_OverHTTP(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	newContract := func(field string, s schema.Schema) *Contract {
		return mustNew(t, Options{
			Name:     "Name",
			Consumer: "Consumer",
			Request:  &transport.Request{URL: srv.URL + "/"},
			Response: schema.Response(schema.ResponseSpec{
				Status: schema.Status(200),
				Body:   schema.Object(schema.Key(field, s)),
			}),
			Client: transport.NewHTTPClient(transport.HTTPConfig{}),
		})
	}

	t.Run("valid", func(t *testing.T) {
		body = `{"foo":"bar"}`
		resp, err := newContract("foo", schema.String()).Validate(context.Background())
		if err != nil {
			t.Fatalf("Validate() = %v", err)
		}
		if resp.Status != 200 {
			t.Errorf("Status = %d, want 200", resp.Status)
		}
	})

	t.Run("broken", func(t *testing.T) {
		body = `{"bar":"baz"}`
		_, err := newContract("bar", schema.Number().Integer()).Validate(context.Background())
		if err == nil {
			t.Fatal("expected contract failure")
		}
		if err.Error() != `Contract failed: "body.bar" must be a number` {
			t.Errorf("Error = %q", err.Error())
		}
		if Detail(err) != "at res.body.bar got [baz]" {
			t.Errorf("Detail = %q, want %q", Detail(err), "at res.body.bar got [baz]")
		}
		if KindOf(err) != KindSchema {
			t.Errorf("KindOf = %q, want schema", KindOf(err))
		}
	})
}

func TestValidate_RequestTimeout(t *testing.T) {
	client := transport.ClientFunc(func(ctx context.Context, req transport.Request) (*transport.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	opts := baseOptions(client)
	opts.Request = &transport.Request{URL: "http://api.example.com/", Timeout: 10 * time.Millisecond}

	_, err := mustNew(t, opts).Validate(context.Background())
	want := "Request failed for GET http://api.example.com/: timeout of 10ms exceeded"
	if err == nil || err.Error() != want {
		t.Errorf("Validate() = %v, want %q", err, want)
	}
	if KindOf(err) != KindRequest {
		t.Errorf("KindOf = %q, want request", KindOf(err))
	}
}

func TestValidate_Hooks(t *testing.T) {
	t.Run("before failure skips request and after", func(t *testing.T) {
		client := &statusClient{statuses: []int{200}}
		var afterCalls int
		opts := baseOptions(client)
		opts.Before = hooks.Callback(func(done func(error)) { done(errors.New("Before hook failed")) })
		opts.After = hooks.Func(func(context.Context) error { afterCalls++; return nil })

		out := mustNew(t, opts).Run(context.Background())
		if out.Err == nil || out.Err.Error() != "Before hook failed" {
			t.Errorf("Err = %v, want %q", out.Err, "Before hook failed")
		}
		if KindOf(out.Err) != KindHook {
			t.Errorf("KindOf = %q, want hook", KindOf(out.Err))
		}
		if client.calls.Load() != 0 || out.Attempts != 0 {
			t.Errorf("requests = %d, attempts = %d; want 0", client.calls.Load(), out.Attempts)
		}
		if afterCalls != 0 {
			t.Errorf("after called %d times, want 0", afterCalls)
		}
	})

	t.Run("after runs once on success", func(t *testing.T) {
		var afterCalls int
		opts := baseOptions(&statusClient{statuses: []int{200}})
		opts.After = hooks.Func(func(context.Context) error { afterCalls++; return nil })

		if _, err := mustNew(t, opts).Validate(context.Background()); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
		if afterCalls != 1 {
			t.Errorf("after called %d times, want 1", afterCalls)
		}
	})

	t.Run("after never runs on schema failure", func(t *testing.T) {
		var afterCalls int
		opts := baseOptions(&statusClient{statuses: []int{500}})
		opts.Retries = 2
		opts.After = hooks.Func(func(context.Context) error { afterCalls++; return nil })

		if _, err := mustNew(t, opts).Validate(context.Background()); err == nil {
			t.Fatal("expected contract failure")
		}
		if afterCalls != 0 {
			t.Errorf("after called %d times, want 0", afterCalls)
		}
	})

	t.Run("after failure is the result", func(t *testing.T) {
		opts := baseOptions(&statusClient{statuses: []int{200}})
		opts.After = hooks.Callback(func(done func(error)) { done(errors.New("After hook failed")) })

		resp, err := mustNew(t, opts).Validate(context.Background())
		if err == nil || err.Error() != "After hook failed" {
			t.Errorf("Validate() = %v, want %q", err, "After hook failed")
		}
		if resp == nil || resp.Status != 200 {
			t.Errorf("response = %+v, want the validated response", resp)
		}
	})
}

func TestValidate_FixedRetries(t *testing.T) {
	client := &statusClient{statuses: []int{500}}
	sleeper := retry.NewVirtualSleeper()
	opts := baseOptions(client)
	opts.Retries, opts.RetryDelay = 2, 250*time.Millisecond
	opts.Sleeper = sleeper

	out := mustNew(t, opts).Run(logging.IntoContext(context.Background(), logging.NewTestLogger()))
	if out.Err == nil || out.Err.Error() != `Contract failed: "status" must be [200]` {
		t.Errorf("Err = %v", out.Err)
	}
	if Detail(out.Err) != "at res.status got [500]" {
		t.Errorf("Detail = %q", Detail(out.Err))
	}
	if got := client.calls.Load(); got != 3 || out.Attempts != 3 {
		t.Errorf("requests = %d, attempts = %d; want 3", got, out.Attempts)
	}
	if diff := cmp.Diff([]time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, sleeper.Delays()); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_RetryThenPass(t *testing.T) {
	client := &statusClient{statuses: []int{500, 500, 200}}
	opts := baseOptions(client)
	opts.Retries = 2

	out := mustNew(t, opts).Run(context.Background())
	if out.Err != nil {
		t.Fatalf("Err = %v, want success", out.Err)
	}
	if client.calls.Load() != 3 {
		t.Errorf("requests = %d, want 3", client.calls.Load())
	}
}

func TestValidate_DynamicPolicy(t *testing.T) {
	t.Run("handler stops early", func(t *testing.T) {
		client := &statusClient{statuses: []int{503}}
		var seen []int
		opts := baseOptions(client)
		opts.RetryPolicy = &retry.Dynamic{
			MaxRetries: 10,
			Handler: func(failure error, req transport.Request, attempt int) (time.Duration, bool) {
				seen = append(seen, attempt)
				if req.URL != "http://api.example.com/" {
					t.Errorf("handler request URL = %q", req.URL)
				}
				var verr *schema.ValidationError
				if !errors.As(failure, &verr) || verr.Status != 503 {
					t.Errorf("handler failure = %v", failure)
				}
				return time.Millisecond, attempt < 1
			},
		}

		out := mustNew(t, opts).Run(context.Background())
		if out.Err == nil {
			t.Fatal("expected failure")
		}
		if client.calls.Load() != 2 {
			t.Errorf("requests = %d, want 2", client.calls.Load())
		}
		if diff := cmp.Diff([]int{0, 1}, seen); diff != "" {
			t.Errorf("handler attempts mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("budget bounds requests", func(t *testing.T) {
		client := &statusClient{statuses: []int{503}}
		opts := baseOptions(client)
		opts.RetryPolicy = &retry.Dynamic{
			MaxRetries: 3,
			Handler:    func(error, transport.Request, int) (time.Duration, bool) { return 0, true },
		}

		mustNew(t, opts).Run(context.Background())
		if client.calls.Load() != 4 {
			t.Errorf("requests = %d, want 4", client.calls.Load())
		}
	})

	t.Run("handler sees the request as sent", func(t *testing.T) {
		var sent, seen transport.Request
		client := transport.ClientFunc(func(_ context.Context, req transport.Request) (*transport.Response, error) {
			sent = req
			return &transport.Response{Status: 503}, nil
		})
		opts := baseOptions(client)
		opts.Request = &transport.Request{Method: "post", URL: "http://api.example.com/", Timeout: time.Second}
		opts.RetryPolicy = &retry.Dynamic{
			MaxRetries: 1,
			Handler: func(_ error, req transport.Request, _ int) (time.Duration, bool) {
				seen = req
				return 0, false
			},
		}

		mustNew(t, opts).Run(context.Background())
		if seen.Method != "POST" || seen.Headers["User-Agent"] != transport.UserAgent() || seen.Headers["Accept"] != "application/json" {
			t.Errorf("handler request = %+v", seen)
		}
		if diff := cmp.Diff(sent, seen); diff != "" {
			t.Errorf("handler request differs from sent request (-sent +seen):\n%s", diff)
		}
	})
}

type widget struct {
	Foo string `json:"foo"`
}

func TestValidate_CustomClientBodies(t *testing.T) {
	bodies := map[string]any{
		"json bytes": []byte(`{"foo":"bar"}`),
		"struct":     widget{Foo: "bar"},
		"typed map":  map[string]int{"foo": 1},
		"string map": map[string]string{"foo": "bar"},
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := transport.ClientFunc(func(context.Context, transport.Request) (*transport.Response, error) {
				return &transport.Response{Status: 200, Body: body}, nil
			})
			opts := baseOptions(client)
			opts.Response = schema.Response(schema.ResponseSpec{
				Status: schema.Status(200),
				Body:   schema.Object(schema.Key("foo", schema.Any())),
			})
			if _, err := mustNew(t, opts).Validate(context.Background()); err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestValidate_TransportFailures(t *testing.T) {
	t.Run("terminal without budget", func(t *testing.T) {
		var calls, handlerCalls int
		client := transport.ClientFunc(func(context.Context, transport.Request) (*transport.Response, error) {
			calls++
			return nil, errors.New("ECONNREFUSED")
		})
		opts := baseOptions(client)
		opts.RetryPolicy = &retry.Dynamic{Handler: func(error, transport.Request, int) (time.Duration, bool) {
			handlerCalls++
			return 0, true
		}}

		_, err := mustNew(t, opts).Validate(context.Background())
		if err == nil || err.Error() != "Request failed for GET http://api.example.com/: ECONNREFUSED" {
			t.Errorf("Validate() = %v", err)
		}
		if calls != 1 || handlerCalls != 0 {
			t.Errorf("requests = %d, handler calls = %d; want 1, 0", calls, handlerCalls)
		}
	})

	t.Run("retried with budget", func(t *testing.T) {
		var calls int
		client := transport.ClientFunc(func(context.Context, transport.Request) (*transport.Response, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("ECONNRESET")
			}
			return &transport.Response{Status: 200}, nil
		})
		opts := baseOptions(client)
		opts.Retries = 1

		if _, err := mustNew(t, opts).Validate(context.Background()); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
		if calls != 2 {
			t.Errorf("requests = %d, want 2", calls)
		}
	})
}

func TestValidate_CancelledDuringRetryWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &statusClient{statuses: []int{500}}
	opts := baseOptions(client)
	opts.Retries = 5
	opts.Sleeper = retry.SleeperFunc(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	out := mustNew(t, opts).Run(ctx)
	if KindOf(out.Err) != KindSchema {
		t.Errorf("Err = %v, want the last schema failure", out.Err)
	}
	if client.calls.Load() != 1 {
		t.Errorf("requests = %d, want 1", client.calls.Load())
	}
}

func TestValidate_Repeatable(t *testing.T) {
	client := &statusClient{statuses: []int{404}}
	opts := baseOptions(client)
	opts.Retries = 1
	c := mustNew(t, opts)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Validate(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil || err.Error() != errs[0].Error() {
			t.Errorf("run %d: Err = %v, want %v", i, err, errs[0])
		}
	}
	if client.calls.Load() != 12 {
		t.Errorf("requests = %d, want 12", client.calls.Load())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"configuration", missingProperty("name"), KindConfiguration},
		{"hook", &hooks.HookError{Phase: hooks.PhaseBefore, Err: errors.New("x")}, KindHook},
		{"request", &transport.RequestError{Msg: "x"}, KindRequest},
		{"schema", schema.NewValidationError(&schema.Failure{Path: "status"}, 500), KindSchema},
		{"unknown", errors.New("x"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
