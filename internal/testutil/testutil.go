// Package testutil provides scripted model and kernel doubles shared by the
// package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/model"
)

// ScriptedModel replies with a fixed sequence of responses, one per Generate
// call, then repeats the last one. It records every request it receives.
type ScriptedModel struct {
	mu       sync.Mutex
	replies  []model.Response
	requests []model.Request
	calls    int
}

// NewScriptedModel builds a model that plays back the given text replies.
func NewScriptedModel(texts ...string) *ScriptedModel {
	replies := make([]model.Response, 0, len(texts))
	for _, t := range texts {
		replies = append(replies, model.Response{
			Content:      core.TextContent("assistant", t),
			FinishReason: "stop",
		})
	}
	return &ScriptedModel{replies: replies}
}

// NewScriptedResponses builds a model that plays back full responses, for
// scripting tool calls and other non-text replies.
func NewScriptedResponses(replies ...model.Response) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(_ context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := m.calls
	m.calls++
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	if idx < 0 {
		return &model.Response{FinishReason: "stop"}, nil
	}
	resp := m.replies[idx]
	return &resp, nil
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Provider: "scripted", Name: "scripted"}
}

// Calls reports how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every recorded request.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// FakeSession is a kernel.Session double returning scripted results in
// order, then repeating the last one.
type FakeSession struct {
	mu       sync.Mutex
	results  []kernel.ExecResult
	executed []string
	started  bool
	shutdown bool
	StartErr error
}

// NewFakeSession builds a session that plays back the given results.
func NewFakeSession(results ...kernel.ExecResult) *FakeSession {
	return &FakeSession{results: results}
}

// Start implements kernel.Session.
func (s *FakeSession) Start() error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

// Execute implements kernel.Session.
func (s *FakeSession) Execute(_ context.Context, code string, _ time.Duration) kernel.ExecResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.executed)
	s.executed = append(s.executed, code)
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	if idx < 0 {
		return kernel.ExecResult{Success: true}
	}
	return s.results[idx]
}

// Shutdown implements kernel.Session.
func (s *FakeSession) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
}

// Executed returns the code snippets run so far.
func (s *FakeSession) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.executed))
	copy(out, s.executed)
	return out
}

// WasShutdown reports whether Shutdown was called.
func (s *FakeSession) WasShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Factory returns a kernel.SessionFactory always yielding this session.
func (s *FakeSession) Factory() kernel.SessionFactory {
	return func() kernel.Session { return s }
}
