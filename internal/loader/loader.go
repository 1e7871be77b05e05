// Package loader discovers contract files and builds contracts from their
// YAML form.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/exec"
	"github.com/ShayCichocki/consumer-contracts/internal/hooks"
	"github.com/ShayCichocki/consumer-contracts/internal/retry"
	"github.com/ShayCichocki/consumer-contracts/internal/schema"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// LoadError reports a contract file that could not be turned into
// contracts. It aborts the batch.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return "Failed to load contract: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Loader builds contracts from files. Every contract it builds shares the
// same client, command runner and sleeper.
type Loader struct {
	client  transport.Client
	runner  exec.CommandRunner
	sleeper retry.Sleeper
	timeout time.Duration
}

// Option configures a Loader.
type Option func(*Loader)

// WithClient sets the transport shared by loaded contracts.
func WithClient(c transport.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithCommandRunner sets the runner for command hooks.
func WithCommandRunner(r exec.CommandRunner) Option {
	return func(l *Loader) { l.runner = r }
}

// WithSleeper sets the retry sleeper of loaded contracts.
func WithSleeper(s retry.Sleeper) Option {
	return func(l *Loader) { l.sleeper = s }
}

// WithDefaultTimeout sets the request timeout of contracts that set none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{runner: exec.NewRunner()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFiles loads every file with a default Loader.
func LoadFiles(paths []string, opts ...Option) ([]*contract.Contract, error) {
	return New(opts...).LoadFiles(paths)
}

// LoadFiles loads paths in order and concatenates their contracts. The
// first failure aborts loading.
func (l *Loader) LoadFiles(paths []string) ([]*contract.Contract, error) {
	var all []*contract.Contract
	for _, path := range paths {
		contracts, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, contracts...)
	}
	return all, nil
}

// LoadFile loads the contracts in one file. A file holds one contract, a
// multi-document stream of contracts, or a mapping with a contracts list.
func (l *Loader) LoadFile(path string) ([]*contract.Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	contracts, err := l.parse(path, data)
	if err != nil {
		var lerr *LoadError
		if errors.As(err, &lerr) {
			return nil, lerr
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	return contracts, nil
}

func (l *Loader) parse(path string, data []byte) ([]*contract.Contract, error) {
	var nodes []*yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		items, err := documentItems(&doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		nodes = append(nodes, items...)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("No contract defined for '%s'", path)
	}

	contracts := make([]*contract.Contract, 0, len(nodes))
	for _, node := range nodes {
		c, err := l.build(path, node)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, node.Line, err)
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// documentItems returns the contract mappings in one YAML document.
func documentItems(doc *yaml.Node) ([]*yaml.Node, error) {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			return nil, nil
		}
		doc = doc.Content[0]
	}
	switch doc.Kind {
	case yaml.ScalarNode:
		if doc.Tag == "!!null" {
			return nil, nil
		}
	case yaml.SequenceNode:
		return mappings(doc.Content)
	case yaml.MappingNode:
		if len(doc.Content) == 2 && doc.Content[0].Value == "contracts" {
			list := doc.Content[1]
			if list.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("line %d: contracts must be a list", list.Line)
			}
			return mappings(list.Content)
		}
		return []*yaml.Node{doc}, nil
	}
	return nil, fmt.Errorf("line %d: a contract must be a mapping", doc.Line)
}

func mappings(nodes []*yaml.Node) ([]*yaml.Node, error) {
	for _, n := range nodes {
		if n.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: a contract must be a mapping", n.Line)
		}
	}
	return nodes, nil
}

func (l *Loader) build(path string, node *yaml.Node) (*contract.Contract, error) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if key := node.Content[i]; !contractFields[key.Value] {
			return nil, fmt.Errorf("unknown field %q", key.Value)
		}
	}
	var fc fileContract
	if err := node.Decode(&fc); err != nil {
		return nil, err
	}

	opts := contract.Options{
		Name:       fc.Name,
		Consumer:   fc.Consumer,
		RetryDelay: time.Duration(fc.RetryDelay),
		Client:     l.client,
		Sleeper:    l.sleeper,
		Source:     path,
	}

	if fc.Request != nil {
		req, err := l.request(fc.Request)
		if err != nil {
			return nil, fmt.Errorf("request: %w", err)
		}
		opts.Request = req
	}
	if !fc.Response.IsZero() {
		resp, err := schema.DecodeResponse(&fc.Response)
		if err != nil {
			return nil, err
		}
		opts.Response = resp
	}
	if err := decodeRetries(&fc.Retries, &opts); err != nil {
		return nil, fmt.Errorf("retries: %w", err)
	}
	if fc.Before != nil {
		opts.Before = l.hook(fc.Before)
	}
	if fc.After != nil {
		opts.After = l.hook(fc.After)
	}
	if fc.Validation != nil {
		vo, err := fc.Validation.options()
		if err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
		opts.ValidationOptions = vo
	}
	return contract.New(opts)
}

func (l *Loader) request(fr *fileRequest) (*transport.Request, error) {
	url, err := expand(fr.URL)
	if err != nil {
		return nil, err
	}
	if err := expandMap(fr.Headers); err != nil {
		return nil, err
	}
	if err := expandMap(fr.Query); err != nil {
		return nil, err
	}
	body, err := expandAny(fr.Body)
	if err != nil {
		return nil, err
	}
	req := &transport.Request{
		Method:  fr.Method,
		URL:     url,
		Headers: fr.Headers,
		Query:   fr.Query,
		Body:    body,
		Timeout: time.Duration(fr.Timeout),
	}
	if req.URL == "" {
		return nil, errors.New("url is required")
	}
	if req.Timeout == 0 {
		req.Timeout = l.timeout
	}
	return req, nil
}

func (l *Loader) hook(fh *fileHook) hooks.Hook {
	return hooks.Command(l.runner, hooks.CommandSpec{
		Command: fh.Command,
		Dir:     fh.Dir,
		Timeout: time.Duration(fh.Timeout),
	})
}

// decodeRetries accepts a retry count or a backoff mapping.
func decodeRetries(node *yaml.Node, opts *contract.Options) error {
	switch node.Kind {
	case 0:
		return nil
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("line %d: must be a number or a backoff mapping", node.Line)
		}
		if n < 0 {
			return fmt.Errorf("line %d: must not be negative", node.Line)
		}
		opts.Retries = n
		return nil
	case yaml.MappingNode:
		var fb fileBackoff
		if err := node.Decode(&fb); err != nil {
			return err
		}
		b := retry.Backoff{
			Strategy:     fb.Backoff,
			Delay:        time.Duration(fb.Delay),
			MaxDelay:     time.Duration(fb.MaxDelay),
			StopOnStatus: fb.StopOnStatus,
		}
		if err := b.Validate(); err != nil {
			return err
		}
		opts.RetryPolicy = &retry.Dynamic{MaxRetries: fb.MaxRetries, Handler: b.Handler()}
		return nil
	}
	return fmt.Errorf("line %d: must be a number or a backoff mapping", node.Line)
}

func (fv *fileValidate) options() (schema.Options, error) {
	p := schema.Presence(fv.Presence)
	if p != "" && !slices.Contains([]schema.Presence{schema.PresenceRequired, schema.PresenceOptional}, p) {
		return schema.Options{}, fmt.Errorf("presence must be required or optional, got %q", fv.Presence)
	}
	return schema.Options{AllowUnknown: fv.AllowUnknown, Presence: p, Convert: fv.Convert}, nil
}
