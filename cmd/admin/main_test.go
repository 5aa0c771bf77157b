package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

func TestParseOptions(t *testing.T) {
	defaults := options{limit: lifecycle.DefaultArchivePageSize, max: lifecycle.DefaultMaxChanges}

	tests := []struct {
		name string
		args []string
		want func(o options) options
	}{
		{
			name: "no arguments",
			want: func(o options) options { return o },
		},
		{
			name: "paging",
			args: []string{"--skip=20", "--limit=10", "--desc"},
			want: func(o options) options {
				o.skip, o.limit, o.desc = 20, 10, true
				return o
			},
		},
		{
			name: "changes",
			args: []string{"--since=42", "--max=5", "--json"},
			want: func(o options) options {
				o.since, o.max, o.json = "42", 5, true
				return o
			},
		},
		{
			name: "positional archive id and principal",
			args: []string{"arch-1", "--principal=bob"},
			want: func(o options) options {
				o.args = []string{"arch-1"}
				o.principal = "bob"
				return o
			},
		},
		{
			name: "explicit false and bad numbers keep defaults",
			args: []string{"--desc=false", "--limit=ten", "--skip=-"},
			want: func(o options) options { return o },
		},
		{
			name: "unknown flags are ignored",
			args: []string{"--verbose", "--color=auto"},
			want: func(o options) options { return o },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want(defaults), parseOptions(tt.args))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly10!", truncate("exactly10!", 10))
	assert.Equal(t, "a long ...", truncate("a long name here", 10))
}
