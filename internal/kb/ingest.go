package kb

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/google/uuid"
)

// chunkSize bounds a single indexed chunk; paragraphs are merged up to it.
const chunkSize = 1200

var ingestExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// IngestDir loads every supported document under dir into the index and
// returns the number of documents indexed.
func (idx *Index) IngestDir(ctx context.Context, dir string) (int, error) {
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{UseNameAsID: true})
	if err != nil {
		return 0, fmt.Errorf("create file loader: %w", err)
	}

	indexed := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ingestExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		docs, err := loader.Load(ctx, document.Source{URI: path})
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		var content strings.Builder
		for _, doc := range docs {
			content.WriteString(doc.Content)
			content.WriteString("\n")
		}
		info := SourceInfo{
			SourceID: uuid.NewString(),
			Filename: filepath.Base(path),
			Path:     path,
		}
		if err := idx.AddDocument(ctx, info, splitChunks(content.String(), chunkSize)); err != nil {
			return err
		}
		indexed++
		return nil
	})
	if err != nil {
		return indexed, fmt.Errorf("ingest %s: %w", dir, err)
	}
	return indexed, nil
}

// splitChunks splits text on blank lines and merges paragraphs up to maxLen.
func splitChunks(text string, maxLen int) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
