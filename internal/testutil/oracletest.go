// Package testutil provides shared test infrastructure.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// RiskAnswer is what the fake oracle reports for an asset.
type RiskAnswer struct {
	Score      float64
	Compliance string // empty = field omitted from the response
}

// RiskOracle is a fake risk oracle server speaking the /v1/risk/{asset}
// wire format. Tests configure answers up front and point an oracle client
// at URL().
type RiskOracle struct {
	srv *httptest.Server

	mu         sync.Mutex
	hits       int
	failStatus int
	answers    map[string]RiskAnswer
	catchAll   *RiskAnswer
}

// NewRiskOracle starts a fake oracle. It shuts down with the test.
func NewRiskOracle(t *testing.T) *RiskOracle {
	t.Helper()
	o := &RiskOracle{answers: make(map[string]RiskAnswer)}
	o.srv = httptest.NewServer(http.HandlerFunc(o.handle))
	t.Cleanup(o.srv.Close)
	return o
}

// URL returns the base URL for oracle client configs.
func (o *RiskOracle) URL() string { return o.srv.URL }

// Answer sets the response for one asset.
func (o *RiskOracle) Answer(asset string, a RiskAnswer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answers[asset] = a
}

// AnswerAll sets the response for any asset without a specific answer.
func (o *RiskOracle) AnswerAll(a RiskAnswer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.catchAll = &a
}

// FailWith makes every request return the given status code.
func (o *RiskOracle) FailWith(status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failStatus = status
}

// Hits returns how many requests the oracle has served.
func (o *RiskOracle) Hits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits
}

func (o *RiskOracle) handle(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits++
	failStatus := o.failStatus
	asset := strings.TrimPrefix(r.URL.Path, "/v1/risk/")
	a, ok := o.answers[asset]
	if !ok && o.catchAll != nil {
		a, ok = *o.catchAll, true
	}
	o.mu.Unlock()

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	resp := map[string]any{"riskScore": a.Score}
	if a.Compliance != "" {
		resp["complianceStatus"] = a.Compliance
	}
	_ = json.NewEncoder(w).Encode(resp)
}
