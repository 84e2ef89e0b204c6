package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// BigQueryTarget applies migrations to one BigQuery dataset.
type BigQueryTarget struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

func NewBigQueryTarget(client *bigquery.Client, projectID, datasetID string) *BigQueryTarget {
	return &BigQueryTarget{client: client, projectID: projectID, datasetID: datasetID}
}

func (t *BigQueryTarget) table() string {
	return "`" + t.projectID + "." + t.datasetID + ".schema_migrations`"
}

func (t *BigQueryTarget) EnsureSchemaTable(ctx context.Context) error {
	return t.exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+t.table()+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)`, nil)
}

func (t *BigQueryTarget) Applied(ctx context.Context) ([]AppliedMigration, error) {
	q := t.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + t.table() + `
		ORDER BY version ASC`)

	it, err := q.Read(ctx)
	if err != nil {
		// If table doesn't exist yet, return empty list
		if strings.Contains(err.Error(), "Not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// Apply runs the migration and then records it. BigQuery DDL is not
// transactional, so a failure between the two leaves the schema changed but
// unrecorded; migrations use IF NOT EXISTS to make a rerun safe.
func (t *BigQueryTarget) Apply(ctx context.Context, m Migration, appliedBy string) error {
	if err := t.exec(ctx, m.SQL, nil); err != nil {
		return err
	}
	return t.exec(ctx, `
		INSERT INTO `+t.table()+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)`,
		[]bigquery.QueryParameter{
			{Name: "version", Value: m.Version},
			{Name: "name", Value: m.Name},
			{Name: "checksum", Value: m.Checksum},
			{Name: "applied_by", Value: appliedBy},
		})
}

func (t *BigQueryTarget) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := t.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
