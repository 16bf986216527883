package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PathTemplate provides functionality to generate S3 prefixes from templates
type PathTemplate struct {
	template string
}

// NewPathTemplate creates a new PathTemplate instance
func NewPathTemplate(template string) *PathTemplate {
	return &PathTemplate{template: template}
}

// Generate replaces placeholders in the template with actual values
// Supports: {table}, {YYYY}, {MM}, {DD}, {HH}
func (pt *PathTemplate) Generate(tableName string, timestamp time.Time) string {
	result := pt.template

	result = strings.ReplaceAll(result, "{table}", tableName)
	result = strings.ReplaceAll(result, "{YYYY}", timestamp.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", timestamp.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", timestamp.Format("02"))
	result = strings.ReplaceAll(result, "{HH}", timestamp.Format("15"))

	return strings.TrimSuffix(result, "/")
}

// PartitionFilename creates a unique object name for one partition.
// Random names keep concurrent writers from colliding and let append
// exports accumulate under one prefix.
func PartitionFilename(tableName string, compressionExt string) string {
	return fmt.Sprintf("%s-%s.csv%s", tableName, uuid.NewString(), compressionExt)
}
