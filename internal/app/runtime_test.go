package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/odyssey-erp/core-ledger/testing"
)

func TestTestModeFrom(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"1":     true,
		"true":  true,
		"TRUE":  true,
		"0":     false,
		"false": false,
		"yes":   false,
	}
	for value, want := range cases {
		t.Run("value="+value, func(t *testing.T) {
			getenv := func(key string) string {
				if key == TestModeEnv {
					return value
				}
				return ""
			}
			assert.Equal(t, want, testModeFrom(getenv))
		})
	}
}

func TestInTestModeUnderGoTest(t *testing.T) {
	assert.True(t, InTestMode())
}
