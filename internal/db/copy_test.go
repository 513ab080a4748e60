package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flowCols = []string{"year", "dst", "org", "flow"}

func flowRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{2021, 6001, 6075 + i, int64(i + 1)}
	}
	return rows
}

func TestCopyFrom_NoRowsSkipsCopy(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "reflex.flows", flowCols, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"reflex", "flows"}, flowCols).WillReturnResult(3)

	n, err := CopyFrom(context.Background(), mock, "reflex.flows", flowCols, flowRows(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_ErrorNamesTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"reflex", "flows"}, flowCols).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "reflex.flows", flowCols, flowRows(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO reflex.flows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches(t *testing.T) {
	tests := []struct {
		name      string
		rows      int
		batchSize int
		batches   []int64
	}{
		{"exact multiple", 4, 2, []int64{2, 2}},
		{"remainder", 5, 2, []int64{2, 2, 1}},
		{"single batch when unset", 5, 0, []int64{5}},
		{"batch larger than rows", 3, 10, []int64{3}},
		{"no rows", 0, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			var want int64
			for _, b := range tt.batches {
				mock.ExpectCopyFrom(pgx.Identifier{"reflex", "flows"}, flowCols).WillReturnResult(b)
				want += b
			}

			n, err := CopyBatches(context.Background(), mock, "reflex.flows", flowCols, flowRows(tt.rows), tt.batchSize)
			require.NoError(t, err)
			assert.Equal(t, want, n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCopyBatches_StopsOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"reflex", "flows"}, flowCols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"reflex", "flows"}, flowCols).WillReturnError(fmt.Errorf("disk full"))

	n, err := CopyBatches(context.Background(), mock, "reflex.flows", flowCols, flowRows(5), 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch at row 2")
	assert.Equal(t, int64(2), n, "rows copied before the failure are reported")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"diversity_index"`, Identifier("diversity_index").Sanitize())
	assert.Equal(t, `"reflex"."counties"`, Identifier("reflex.counties").Sanitize())
}
