/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/valpere/news2docx/internal"
	"github.com/valpere/news2docx/internal/paragraph"
)

// inputArticle accepts either a paragraph list or a single content string
// split on blank lines or %% separators.
type inputArticle struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Paragraphs []string `json:"paragraphs"`
	Content    string   `json:"content"`
}

func (in inputArticle) article() internal.Article {
	paras := in.Paragraphs
	if len(paras) == 0 {
		paras = paragraph.Split(in.Content)
	}
	return internal.Article{
		URL:       strings.TrimSpace(in.URL),
		Title:     strings.TrimSpace(in.Title),
		Body:      paras,
		WordCount: paragraph.CountAll(paras),
	}
}

// readArticles loads a scraper export. Files ending in .csv need a header
// row with url, title and content columns; anything else is JSON, either
// {"articles": [...]} or a bare array.
func readArticles(path string) ([]internal.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var items []inputArticle
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		items, err = parseCSV(bytes.NewReader(data))
	} else {
		items, err = parseJSON(data)
	}
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("input file %s contains no articles", path)
	}

	out := make([]internal.Article, len(items))
	for i, it := range items {
		out[i] = it.article()
	}
	return out, nil
}

func parseJSON(data []byte) ([]inputArticle, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []inputArticle
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse articles: %w", err)
		}
		return items, nil
	}

	var doc struct {
		Articles []inputArticle `json:"articles"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse articles: %w", err)
	}
	return doc.Articles, nil
}

func parseCSV(r io.Reader) ([]inputArticle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols := map[string]int{"url": -1, "title": -1, "content": -1}
	for i, h := range records[0] {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	if cols["content"] < 0 {
		return nil, fmt.Errorf("CSV header must contain a content column")
	}

	field := func(row []string, name string) string {
		i := cols[name]
		if i < 0 || i >= len(row) {
			return ""
		}
		return row[i]
	}

	items := make([]inputArticle, 0, len(records)-1)
	for _, row := range records[1:] {
		items = append(items, inputArticle{
			URL:     field(row, "url"),
			Title:   field(row, "title"),
			Content: field(row, "content"),
		})
	}
	return items, nil
}
