package objectkey

import (
	"fmt"
	"strings"
)

// Generator names the blob of an attachment inside a storage backend
type Generator interface {
	// GenerateKey creates an object key for an attachment of a repository
	GenerateKey(repositoryID, attachmentID, fileName string) string
}

// Layout names for configuration
const (
	LayoutFlat    = "flat"
	LayoutSharded = "sharded"
)

// FlatGenerator keeps every attachment of a repository in one prefix: A/{repository}/{attachment}
type FlatGenerator struct{}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{}
}

func (g *FlatGenerator) GenerateKey(repositoryID, attachmentID, fileName string) string {
	return fmt.Sprintf("A/%s/%s", repositoryID, attachmentID)
}

// ShardedGenerator spreads attachments Git-style under the first characters of their id:
// repositories/{repository}/attachments/ab/cd1234ef5678_filename
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(repositoryID, attachmentID, fileName string) string {
	id := strings.ReplaceAll(attachmentID, "-", "")
	n := g.ShardLength
	if n <= 0 {
		n = 2
	}
	if n > len(id) {
		n = len(id)
	}

	name := id[n:]
	if name == "" {
		name = id
	}
	if fileName != "" {
		name = fmt.Sprintf("%s_%s", name, sanitizeFilename(fileName))
	}
	return fmt.Sprintf("repositories/%s/attachments/%s/%s", sanitizePathComponent(repositoryID), id[:n], name)
}

// New returns the generator for a layout name; empty selects the flat layout
func New(layout string) (Generator, error) {
	switch layout {
	case "", LayoutFlat:
		return NewFlatGenerator(), nil
	case LayoutSharded:
		return NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key layout %q", layout)
	}
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

func sanitizeFilename(filename string) string {
	return unsafeChars.Replace(filename)
}

func sanitizePathComponent(component string) string {
	return strings.ToLower(unsafeChars.Replace(component))
}
