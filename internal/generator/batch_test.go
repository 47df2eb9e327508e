package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers each call with the next function in script, or
// with the fallback once the script runs out. Every request is recorded.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []func(llm.Request) (string, error)
	fallback func(llm.Request) (string, error)
	requests []llm.Request
}

func (p *scriptedProvider) Generate(ctx context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	p.mu.Unlock()

	if n <= len(p.script) {
		return p.script[n-1](req)
	}
	return p.fallback(req)
}

func answerAll(req llm.Request) (string, error) {
	out := make(map[string]string, len(req.Keys))
	for _, k := range req.Keys {
		out[k] = "value of " + k
	}
	data, err := json.Marshal(out)
	return string(data), err
}

func answerNone(llm.Request) (string, error) {
	return "{}", nil
}

func makeKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("key %02d", i)
	}
	return keys
}

func TestResolve_SingleRoundWhenEverythingAnswers(t *testing.T) {
	p := &scriptedProvider{fallback: answerAll}
	g := New(p, Options{})

	res, err := g.Resolve(context.Background(), llm.FormData{"a": 1}, makeKeys(25), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 3, res.Batches)
	require.Len(t, p.requests, 3)
	assert.Len(t, p.requests[0].Keys, 10)
	assert.Len(t, p.requests[1].Keys, 10)
	assert.Len(t, p.requests[2].Keys, 5)
	assert.Equal(t, makeKeys(25)[20:], p.requests[2].Keys)

	assert.True(t, res.Complete())
	assert.Equal(t, 25, res.Requested)
	assert.Equal(t, 25, res.Resolved)
	assert.Equal(t, "value of key 07", res.Values["key 07"])
}

func TestResolve_EmptyAnswersStopAfterMaxRounds(t *testing.T) {
	p := &scriptedProvider{fallback: answerNone}
	g := New(p, Options{})

	res, err := g.Resolve(context.Background(), llm.FormData{}, makeKeys(25), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 6, res.Batches)
	assert.Len(t, p.requests, 6)
	assert.Empty(t, res.Values)
	assert.False(t, res.Complete())
	assert.Equal(t, makeKeys(25), res.Missing)
}

func TestResolve_RoundBudgetWithTrickleAnswers(t *testing.T) {
	// resolves exactly one new key per call
	p := &scriptedProvider{fallback: func(req llm.Request) (string, error) {
		return fmt.Sprintf(`{%q: "x"}`, req.Keys[0]), nil
	}}
	g := New(p, Options{BatchSize: 10, MaxRounds: 2})

	res, err := g.Resolve(context.Background(), llm.FormData{}, makeKeys(3), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, []string{"key 02"}, res.Missing)

	// second round only asks for what is still missing
	assert.Equal(t, []string{"key 01", "key 02"}, p.requests[1].Keys)
}

func TestResolve_ReferenceOnlyOnFirstBatchOfFirstRound(t *testing.T) {
	ref := &llm.Reference{Path: "sample.pdf"}
	p := &scriptedProvider{fallback: answerNone}
	g := New(p, Options{BatchSize: 2})

	_, err := g.Resolve(context.Background(), llm.FormData{}, makeKeys(5), ref)
	require.NoError(t, err)

	require.Len(t, p.requests, 6)
	assert.Same(t, ref, p.requests[0].Reference)
	for _, req := range p.requests[1:] {
		assert.Nil(t, req.Reference)
	}
}

func TestResolve_RecoversBatchFailures(t *testing.T) {
	p := &scriptedProvider{
		script: []func(llm.Request) (string, error){
			func(llm.Request) (string, error) { return "I cannot help with that", nil },
			func(llm.Request) (string, error) { return "", llm.ErrBlocked },
			func(llm.Request) (string, error) { return "", errors.New("connection reset") },
			func(llm.Request) (string, error) { return `["not", "an", "object"]`, nil },
		},
		fallback: answerAll,
	}
	g := New(p, Options{BatchSize: 1})

	res, err := g.Resolve(context.Background(), llm.FormData{}, makeKeys(4), nil)
	require.NoError(t, err)

	assert.True(t, res.Complete())
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 8, res.Batches)
	require.Len(t, res.Failures, 4)
	assert.Equal(t, 1, res.Failures[0].Round)
	assert.Equal(t, []string{"key 00"}, res.Failures[0].Keys)
	assert.Contains(t, res.Failures[0].Error, llm.ErrMalformedResponse.Error())
	assert.Contains(t, res.Failures[1].Error, llm.ErrBlocked.Error())
}

func TestResolve_NeverOverwrites(t *testing.T) {
	p := &scriptedProvider{
		script: []func(llm.Request) (string, error){
			func(llm.Request) (string, error) { return `{"key 00": "first"}`, nil },
		},
		fallback: func(llm.Request) (string, error) {
			return `{"key 00": "second", "key 01": "second"}`, nil
		},
	}
	g := New(p, Options{})

	res, err := g.Resolve(context.Background(), llm.FormData{}, makeKeys(2), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"key 00": "first", "key 01": "second"}, res.Values)
}

func TestResolve_TimeoutIsFatal(t *testing.T) {
	p := &scriptedProvider{
		script: []func(llm.Request) (string, error){
			func(llm.Request) (string, error) {
				time.Sleep(50 * time.Millisecond)
				return "", context.DeadlineExceeded
			},
		},
		fallback: answerAll,
	}
	g := New(p, Options{CallTimeout: 10 * time.Millisecond})

	res, err := g.Resolve(context.Background(), llm.FormData{}, makeKeys(3), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrProviderTimeout)
	assert.Len(t, p.requests, 1)
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{fallback: func(llm.Request) (string, error) {
		cancel()
		return "", context.Canceled
	}}
	g := New(p, Options{})

	_, err := g.Resolve(ctx, llm.FormData{}, makeKeys(12), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, p.requests, 1)
}

func TestResolve_NoKeys(t *testing.T) {
	p := &scriptedProvider{fallback: answerAll}
	res, err := New(p, Options{}).Resolve(context.Background(), llm.FormData{}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Rounds)
	assert.Empty(t, p.requests)
	assert.True(t, res.Complete())
}

func TestSplit(t *testing.T) {
	batches := split(makeKeys(5), 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"key 04"}, batches[2])
	assert.Empty(t, split(nil, 10))
}
