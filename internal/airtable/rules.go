package airtable

import (
	"context"
	"fmt"

	"github.com/ignite/audience-sync/internal/mapping"
)

// Rule-table and column names in the sync base. The tables are edited
// by hand, so fetching tolerates blank rows but Resolve rejects
// half-filled ones.
const (
	TablePrograms     = "Programs"
	TableProgramRules = "Mapping Rules"
	TableFieldRules   = "Field Mapping Rules"

	colRuleSource      = "Loops.so Field To Map"
	colRuleProgram     = "Program"
	colFieldSource     = "Loops.so Field"
	colFieldTarget     = "Airtable Field"
	colProgramName     = "Name"
	colProgramCategory = "Category"
)

// FetchMappings loads the three rule tables and resolves them into the
// lookup structures the pipeline consumes.
func (c *Client) FetchMappings(ctx context.Context) (*mapping.Resolved, error) {
	programRecords, err := c.ListAll(ctx, TablePrograms)
	if err != nil {
		return nil, err
	}
	programs := make([]mapping.Program, 0, len(programRecords))
	for _, rec := range programRecords {
		programs = append(programs, mapping.Program{
			ID:       rec.ID,
			Name:     fieldString(rec, colProgramName),
			Category: fieldString(rec, colProgramCategory),
		})
	}

	ruleRecords, err := c.ListAll(ctx, TableProgramRules)
	if err != nil {
		return nil, err
	}
	programRules := make([]mapping.ProgramRule, 0, len(ruleRecords))
	for _, rec := range ruleRecords {
		source := fieldString(rec, colRuleSource)
		programID := firstLinked(rec, colRuleProgram)
		if source == "" && programID == "" {
			continue // blank row
		}
		programRules = append(programRules, mapping.ProgramRule{
			Source:    source,
			ProgramID: programID,
		})
	}

	fieldRecords, err := c.ListAll(ctx, TableFieldRules)
	if err != nil {
		return nil, err
	}
	fieldRules := make([]mapping.FieldRule, 0, len(fieldRecords))
	for _, rec := range fieldRecords {
		source := fieldString(rec, colFieldSource)
		target := fieldString(rec, colFieldTarget)
		if source == "" && target == "" {
			continue // blank row
		}
		fieldRules = append(fieldRules, mapping.FieldRule{
			Source: source,
			Target: target,
		})
	}

	resolved, err := mapping.Resolve(fieldRules, programRules, programs)
	if err != nil {
		return nil, fmt.Errorf("resolve mapping rules: %w", err)
	}
	return resolved, nil
}

// fieldString reads a string cell, tolerating absent fields.
func fieldString(rec Record, field string) string {
	v, ok := rec.Fields[field]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// firstLinked reads the first id of a linked-record cell. Linked cells
// decode as []interface{} of record ids.
func firstLinked(rec Record, field string) string {
	v, ok := rec.Fields[field]
	if !ok {
		return ""
	}
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return ""
	}
	id, _ := list[0].(string)
	return id
}
