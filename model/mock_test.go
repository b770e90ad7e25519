package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain collects every response and the first error from a generation call.
func drain(t *testing.T, respCh <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()
	var responses []Response
	for resp := range respCh {
		responses = append(responses, resp)
	}
	var err error
	for e := range errCh {
		if err == nil {
			err = e
		}
	}
	return responses, err
}

func TestMockModel_Scripted(t *testing.T) {
	m := NewMockModel()
	m.AddScript("hello", Script{Fragments: []string{"Hel", "lo"}, TotalTokens: 42})

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "hello"})
	responses, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 3)

	assert.Equal(t, Response{Text: "Hel", Partial: true}, responses[0])
	assert.Equal(t, Response{Text: "lo", Partial: true}, responses[1])
	assert.Equal(t, Response{Partial: false, TotalTokens: 42}, responses[2])
}

func TestMockModel_UnscriptedFallback(t *testing.T) {
	m := NewMockModel()

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "anything"})
	responses, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.NotEmpty(t, responses)
	assert.Equal(t, "Mock response to: anything", responses[0].Text)
	assert.False(t, responses[len(responses)-1].Partial)
}

func TestMockModel_ErrorBeforeAnyFragment(t *testing.T) {
	m := NewMockModel()
	m.AddScript("hello", Script{Err: errors.New("boom")})

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "hello"})
	responses, err := drain(t, respCh, errCh)
	assert.Empty(t, responses)
	assert.EqualError(t, err, "boom")
}

func TestMockModel_ErrorAfterFragments(t *testing.T) {
	m := NewMockModel()
	m.AddScript("hello", Script{
		Fragments: []string{"one", "two", "three"},
		Err:       errors.New("boom"),
		FailAfter: 2,
	})

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "hello"})
	responses, err := drain(t, respCh, errCh)
	require.Len(t, responses, 2)
	assert.Equal(t, "one", responses[0].Text)
	assert.Equal(t, "two", responses[1].Text)
	assert.EqualError(t, err, "boom")
}

func TestRegistry_Resolve(t *testing.T) {
	mock := NewMockModel()
	other := NewMockModel()

	r := NewRegistry()
	r.Register("gpt-4o", other)
	r.Register("", mock)

	m, err := r.Resolve("gpt-4o")
	require.NoError(t, err)
	assert.Same(t, other, m)

	// Unknown names fall back to the default registration.
	m, err = r.Resolve("claude-sonnet")
	require.NoError(t, err)
	assert.Same(t, mock, m)
}

func TestRegistry_ResolveWithoutFallback(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("unknown")
	assert.Error(t, err)
}
