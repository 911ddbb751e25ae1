package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCacheKey_Deterministic(t *testing.T) {
	args := json.RawMessage(`{"product_name":"Shirt-A","quantity":5}`)
	k1 := CacheKey("inventory_evaluation", args)
	k2 := CacheKey("inventory_evaluation", args)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestCacheKey_KeyOrderInsensitive(t *testing.T) {
	a := json.RawMessage(`{"product_name":"Shirt-A","quantity":5}`)
	b := json.RawMessage(`{"quantity":5,"product_name":"Shirt-A"}`)
	assert.Equal(t, CacheKey("inventory_evaluation", a), CacheKey("inventory_evaluation", b))
}

func TestCacheKey_DistinguishesToolAndArgs(t *testing.T) {
	args := json.RawMessage(`{"product_name":"Shirt-A"}`)
	other := json.RawMessage(`{"product_name":"Shirt-B"}`)
	assert.NotEqual(t,
		CacheKey("inventory_evaluation", args),
		CacheKey("order_summary", args))
	assert.NotEqual(t,
		CacheKey("inventory_evaluation", args),
		CacheKey("inventory_evaluation", other))
}

func TestCacheKey_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tool := rapid.StringMatching(`[a-z_]{1,32}`).Draw(t, "tool")
		name := rapid.StringMatching(`[A-Za-z0-9-]{1,16}`).Draw(t, "name")
		qty := rapid.IntRange(0, 10_000).Draw(t, "qty")

		forward := json.RawMessage(fmt.Sprintf(`{"product_name":%q,"quantity":%d}`, name, qty))
		reversed := json.RawMessage(fmt.Sprintf(`{"quantity":%d,"product_name":%q}`, qty, name))

		k1 := CacheKey(tool, forward)
		k2 := CacheKey(tool, reversed)
		if k1 != k2 {
			t.Fatalf("key differs for reordered args: %s vs %s", k1, k2)
		}
		if len(k1) != 64 {
			t.Fatalf("unexpected key length %d", len(k1))
		}
	})
}

func TestSpan_SealOnce(t *testing.T) {
	s := NewSpan(SpanToolCall, "sales", "sess-1")
	assert.False(t, s.Sealed())
	s.Seal(OutcomeSuccess)
	first := s.EndedAt
	s.Seal(OutcomeFailure)
	assert.Equal(t, OutcomeSuccess, s.Outcome)
	assert.Equal(t, first, s.EndedAt)
}

func TestSpan_Child(t *testing.T) {
	parent := NewSpan(SpanToolCall, "triage", "sess-2")
	child := parent.Child(SpanHandoff, "triage")
	assert.Equal(t, parent.SpanID, child.ParentSpanID)
	assert.Equal(t, parent.SessionID, child.SessionID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}

func TestPreview_Truncates(t *testing.T) {
	long := make([]byte, PreviewLimit*2)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, Preview(long), PreviewLimit)
	assert.Equal(t, "short", Preview([]byte("short")))
}
