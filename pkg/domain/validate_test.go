package domain

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidate_UUIDShapes covers the invariant that user, payment and
// competition result identifiers must be canonical UUIDs, lowercased on
// success.
func TestValidate_UUIDShapes(t *testing.T) {
	uuidTypes := []ResourceType{ResourceUser, ResourcePayment, ResourceCompetitionResult}

	for _, rt := range uuidTypes {
		t.Run(string(rt), func(t *testing.T) {
			t.Run("accepts and lowercases uppercase UUID", func(t *testing.T) {
				r := Validate("550E8400-E29B-41D4-A716-446655440000", rt)
				require.True(t, r.Valid)
				assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", r.SanitizedID)
				assert.Empty(t, r.Errors)
			})

			t.Run("rejects empty string", func(t *testing.T) {
				r := Validate("", rt)
				assert.False(t, r.Valid)
			})

			t.Run("rejects non-UUID", func(t *testing.T) {
				r := Validate("not-a-uuid", rt)
				require.False(t, r.Valid)
				assert.Contains(t, r.Errors, MsgInvalidFormat)
			})

			t.Run("rejects nil UUID", func(t *testing.T) {
				r := Validate(uuid.Nil.String(), rt)
				assert.False(t, r.Valid)
			})

			t.Run("rejects braced form", func(t *testing.T) {
				r := Validate("{550e8400-e29b-41d4-a716-446655440000}", rt)
				assert.False(t, r.Valid)
			})

			t.Run("rejects trailing garbage", func(t *testing.T) {
				r := Validate("550e8400-e29b-41d4-a716-446655440000x", rt)
				assert.False(t, r.Valid)
			})
		})
	}
}

func TestValidate_EventIDs(t *testing.T) {
	t.Run("accepts positive integer", func(t *testing.T) {
		r := Validate("42", ResourceEvent)
		require.True(t, r.Valid)
		assert.Equal(t, "42", r.SanitizedID)
	})

	t.Run("canonicalizes leading zeros", func(t *testing.T) {
		r := Validate("007", ResourceEvent)
		require.True(t, r.Valid)
		assert.Equal(t, "7", r.SanitizedID)
	})

	t.Run("rejects zero", func(t *testing.T) {
		assert.False(t, Validate("0", ResourceEvent).Valid)
	})

	t.Run("rejects negative", func(t *testing.T) {
		assert.False(t, Validate("-5", ResourceEvent).Valid)
	})

	t.Run("rejects values above int32 range", func(t *testing.T) {
		assert.False(t, Validate("2147483648", ResourceEvent).Valid)
	})

	t.Run("accepts int32 maximum", func(t *testing.T) {
		r := Validate("2147483647", ResourceEvent)
		assert.True(t, r.Valid)
	})

	t.Run("rejects non-numeric", func(t *testing.T) {
		assert.False(t, Validate("12abc", ResourceEvent).Valid)
	})
}

func TestValidate_GenericIdentifiers(t *testing.T) {
	t.Run("accepts alphanumeric with dash and underscore", func(t *testing.T) {
		r := Validate("entry_2024-final", ResourceType("entry"))
		require.True(t, r.Valid)
		assert.Equal(t, "entry_2024-final", r.SanitizedID)
	})

	t.Run("rejects whitespace", func(t *testing.T) {
		assert.False(t, Validate("a b", ResourceType("entry")).Valid)
	})

	t.Run("rejects embedded null byte", func(t *testing.T) {
		r := Validate("abc\x00def", ResourceType("entry"))
		require.False(t, r.Valid)
		assert.Contains(t, r.Threats, ThreatNullByte)
	})
}

// TestValidate_RejectsInjection verifies that the threat scan runs before
// any shape logic and always maps to the generic failure message.
func TestValidate_RejectsInjection(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		family string
	}{
		{"sql drop table", "'; DROP TABLE users; --", ThreatSQLInjection},
		{"sql union select", "1 UNION SELECT password FROM users", ThreatSQLInjection},
		{"sql comment", "abc--def", ThreatSQLInjection},
		{"script tag", "<script>alert(1)</script>", ThreatScriptInjection},
		{"javascript scheme", "javascript:alert(1)", ThreatScriptInjection},
		{"event handler", "x onerror=alert(1)", ThreatScriptInjection},
		{"path traversal", "../../etc/passwd", ThreatPathTraversal},
		{"encoded traversal", "%2e%2e%2fetc", ThreatPathTraversal},
		{"command pipe", "id|cat /etc/shadow", ThreatCommandInjection},
		{"command substitution", "$(whoami)", ThreatCommandInjection},
		{"backticks", "`reboot`", ThreatCommandInjection},
		{"null byte", "abc%00", ThreatNullByte},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, rt := range []ResourceType{ResourceUser, ResourceEvent, ResourceType("entry")} {
				r := Validate(tc.input, rt)
				require.False(t, r.Valid, "type %s accepted %q", rt, tc.input)
				assert.Equal(t, []string{MsgInvalidFormat}, r.Errors, "type %s leaked detail", rt)
				assert.Contains(t, r.Threats, tc.family)
			}
		})
	}
}

// TestValidate_Idempotent: validating a sanitized identifier yields the
// same sanitized identifier.
func TestValidate_Idempotent(t *testing.T) {
	inputs := map[ResourceType]string{
		ResourceUser:         "550E8400-E29B-41D4-A716-446655440000",
		ResourceEvent:        "0042",
		ResourceType("slug"): "abc_DEF-123",
	}
	for rt, raw := range inputs {
		first := Validate(raw, rt)
		require.True(t, first.Valid)
		second := Validate(first.SanitizedID, rt)
		require.True(t, second.Valid)
		assert.Equal(t, first.SanitizedID, second.SanitizedID)
	}
}

func TestValidateBatch(t *testing.T) {
	valid := func(n int) []string {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = uuid.New().String()
		}
		return ids
	}

	t.Run("accepts distinct valid identifiers", func(t *testing.T) {
		r := ValidateBatch(valid(3), ResourceUser, 0)
		assert.True(t, r.Valid)
		assert.Empty(t, r.Errors)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		r := ValidateBatch(nil, ResourceUser, 0)
		assert.False(t, r.Valid)
	})

	t.Run("rejects batch over default maximum", func(t *testing.T) {
		r := ValidateBatch(valid(DefaultBatchMax+1), ResourceUser, 0)
		require.False(t, r.Valid)
		assert.Contains(t, r.Errors[0], "too many identifiers")
	})

	t.Run("honors caller-supplied maximum", func(t *testing.T) {
		r := ValidateBatch(valid(4), ResourceUser, 3)
		assert.False(t, r.Valid)
	})

	t.Run("reports duplicates instead of dropping them", func(t *testing.T) {
		id := uuid.New().String()
		r := ValidateBatch([]string{id, strings.ToUpper(id)}, ResourceUser, 0)
		require.False(t, r.Valid)
		assert.Contains(t, r.Errors, fmt.Sprintf("duplicate identifier: %s", strings.ToLower(id)))
	})

	t.Run("collects per-item failures", func(t *testing.T) {
		r := ValidateBatch([]string{uuid.New().String(), "nope"}, ResourceUser, 0)
		require.False(t, r.Valid)
		assert.Contains(t, r.Errors, MsgInvalidFormat)
	})
}

func TestScan_CleanInput(t *testing.T) {
	assert.Empty(t, Scan("550e8400-e29b-41d4-a716-446655440000"))
	assert.Empty(t, Scan("plain_identifier-123"))
}
