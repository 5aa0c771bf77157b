package objectkey

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatGenerator(t *testing.T) {
	gen := NewFlatGenerator()
	assert.Equal(t, "A/bedroom/987fcdeb-51a2-43d1-9f12-345678901234",
		gen.GenerateKey("bedroom", "987fcdeb-51a2-43d1-9f12-345678901234", "report.pdf"))
}

func TestShardedGenerator(t *testing.T) {
	gen := NewShardedGenerator()
	attachmentID := "987fcdeb-51a2-43d1-9f12-345678901234"

	tests := []struct {
		name       string
		repository string
		fileName   string
		expected   string
	}{
		{
			name:       "without filename",
			repository: "bedroom",
			expected:   "repositories/bedroom/attachments/98/7fcdeb51a243d19f12345678901234",
		},
		{
			name:       "with filename",
			repository: "bedroom",
			fileName:   "annual report.pdf",
			expected:   "repositories/bedroom/attachments/98/7fcdeb51a243d19f12345678901234_annual_report.pdf",
		},
		{
			name:       "unsafe repository id",
			repository: "Team/A",
			fileName:   "a.txt",
			expected:   "repositories/team_a/attachments/98/7fcdeb51a243d19f12345678901234_a.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, gen.GenerateKey(tt.repository, attachmentID, tt.fileName))
		})
	}
}

func TestShardedGeneratorSpreadsKeys(t *testing.T) {
	gen := &ShardedGenerator{ShardLength: 1}
	shards := make(map[string]bool)
	for i := 0; i < 200; i++ {
		key := gen.GenerateKey("bedroom", uuid.NewString(), "")
		shards[key[len("repositories/bedroom/attachments/"):][:1]] = true
	}
	assert.Greater(t, len(shards), 4)
}

func TestNew(t *testing.T) {
	gen, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &FlatGenerator{}, gen)

	gen, err = New(LayoutSharded)
	require.NoError(t, err)
	assert.IsType(t, &ShardedGenerator{}, gen)

	_, err = New("hashed")
	assert.Error(t, err)
}
