package bigquery

import (
	"context"
	"fmt"

	"github.com/habahaba/roundup-savings/internal/domain"
)

// RecordAdvisorOutput appends one advisor round trip to advisor_outputs.
// Audit rows are never updated, so they go through the streaming inserter.
func (s *Store) RecordAdvisorOutput(ctx context.Context, out domain.AdvisorOutput) error {
	row := toAdvisorOutputRow(out)

	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(advisorOutputsTable)
	if err := table.Inserter().Put(ctx, []*AdvisorOutputRow{row}); err != nil {
		return fmt.Errorf("RecordAdvisorOutput: inserting row: %w", err)
	}
	return nil
}
