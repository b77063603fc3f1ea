package domain

import (
	"strings"

	"github.com/costplane/costplane/internal/provider"
)

// NormalizeHeader canonicalizes a raw CSV header: lower case with whitespace
// and separator characters stripped, so "lineItem/ProductCode" and
// "line_item_product_code" compare equal.
func NormalizeHeader(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '\t', '_', '-', '/', '.', ':':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type compiledField struct {
	field provider.Field
	index int // -1 when the field has no source column in this file
}

// CompiledMapping is a resolved mapping frozen against one concrete header
// row, so applying it to each record is a constant-cost projection.
type CompiledMapping struct {
	fields []compiledField
}

// Compile binds a resolved mapping to the file's actual header order.
func Compile(resolved ResolvedMapping, headers []string) *CompiledMapping {
	byHeader := make(map[string]int, len(headers))
	for i, h := range headers {
		byHeader[h] = i
	}

	compiled := &CompiledMapping{fields: make([]compiledField, 0, len(provider.Fields))}
	for _, field := range provider.Fields {
		idx := -1
		if source, ok := resolved[field]; ok {
			if i, ok := byHeader[source]; ok {
				idx = i
			}
		}
		compiled.fields = append(compiled.fields, compiledField{field: field, index: idx})
	}
	return compiled
}

// Apply projects one raw record onto the internal schema. Unmapped fields and
// empty source cells are left absent.
func (c *CompiledMapping) Apply(record []string) MappedRow {
	row := make(MappedRow, len(c.fields))
	for _, f := range c.fields {
		if f.index < 0 || f.index >= len(record) {
			continue
		}
		value := strings.TrimSpace(record[f.index])
		if value == "" {
			continue
		}
		row[f.field] = value
	}
	return row
}
