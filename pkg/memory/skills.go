package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// skillMetadataSchema constrains the metadata accepted for skill indexing.
const skillMetadataSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {
			"type": "string",
			"minLength": 1,
			"maxLength": 128
		},
		"description": {
			"type": "string",
			"maxLength": 2048
		},
		"tags": {
			"type": "array",
			"items": {
				"type": "string",
				"minLength": 1
			},
			"maxItems": 32
		}
	},
	"additionalProperties": true
}`

var skillSchemaLoader = gojsonschema.NewStringLoader(skillMetadataSchema)

// SkillMetadata describes a skill being indexed. Name is required;
// description and tags enrich the indexed text so searches hit on them.
type SkillMetadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate checks the metadata against the skill schema.
func (sm SkillMetadata) Validate() error {
	data, err := json.Marshal(sm)
	if err != nil {
		return fmt.Errorf("failed to marshal skill metadata: %w", err)
	}

	result, err := gojsonschema.Validate(skillSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("skill metadata validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, err := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += err.String()
		}
		return fmt.Errorf("invalid skill metadata: %s", errMsg)
	}

	return nil
}

// IndexSkill validates the skill metadata, folds it into an enriched header
// above the body, and indexes the result under the skills source.
func (ix *Indexer) IndexSkill(ctx context.Context, path string, meta SkillMetadata, content string) (IndexResult, error) {
	if err := meta.Validate(); err != nil {
		return IndexResult{Path: path}, err
	}

	return ix.IndexFile(ctx, path, skillIndexText(meta, content), SourceSkills)
}

// skillIndexText builds the searchable text for a skill: metadata header,
// separator, body.
func skillIndexText(meta SkillMetadata, content string) string {
	var parts []string

	parts = append(parts, "Skill: "+meta.Name)
	if meta.Description != "" {
		parts = append(parts, "Description: "+meta.Description)
	}
	if len(meta.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(meta.Tags, ", "))
	}

	parts = append(parts, "---")
	parts = append(parts, content)

	return strings.Join(parts, "\n")
}
