package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
	"github.com/ShayCichocki/consumer-contracts/internal/schema"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

func runBatch(t *testing.T, m *Metrics, statuses ...int) {
	t.Helper()
	var contracts []*contract.Contract
	for i, status := range statuses {
		c, err := contract.New(contract.Options{
			Name:     []string{"Get user", "List users"}[i],
			Consumer: "Accounts",
			Request:  &transport.Request{URL: "http://api.example.com/"},
			Response: schema.Response(schema.ResponseSpec{Status: schema.Status(200)}),
			Client: transport.ClientFunc(func(context.Context, transport.Request) (*transport.Response, error) {
				return &transport.Response{Status: status}, nil
			}),
		})
		if err != nil {
			t.Fatalf("contract.New failed: %v", err)
		}
		contracts = append(contracts, c)
	}
	runner.New(runner.WithRecorder(m)).Run(context.Background(), contracts)
}

func TestMetrics_RecordsBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runBatch(t, m, 200, 503)

	want := `
# HELP consumer_contracts_validations_total Count of contract validations by result.
# TYPE consumer_contracts_validations_total counter
consumer_contracts_validations_total{consumer="Accounts",contract="Get user",kind="none",result="pass"} 1
consumer_contracts_validations_total{consumer="Accounts",contract="List users",kind="schema",result="fail"} 1
# HELP consumer_contracts_last_batch_failed Number of failing contracts in the most recent batch.
# TYPE consumer_contracts_last_batch_failed gauge
consumer_contracts_last_batch_failed 1
# HELP consumer_contracts_request_attempts_total Count of requests issued by contract validations, retries included.
# TYPE consumer_contracts_request_attempts_total counter
consumer_contracts_request_attempts_total{consumer="Accounts",contract="Get user"} 1
consumer_contracts_request_attempts_total{consumer="Accounts",contract="List users"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want),
		"consumer_contracts_validations_total",
		"consumer_contracts_last_batch_failed",
		"consumer_contracts_request_attempts_total",
	); err != nil {
		t.Error(err)
	}
	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
	if v := testutil.ToFloat64(m.lastPassed); v != 1 {
		t.Errorf("last_batch_passed = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.lastRun); v < float64(time.Now().Add(-time.Minute).Unix()) {
		t.Errorf("last_batch_timestamp_seconds = %v, want recent", v)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("expected error registering twice")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	runBatch(t, m, 200)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `consumer_contracts_validations_total{consumer="Accounts",contract="Get user",kind="none",result="pass"} 1`) {
		t.Errorf("metrics output missing validation counter:\n%s", body)
	}
}
