package stage

import (
	"fmt"

	"github.com/sluicedata/sluice/go/catalog"
)

// Suffix returns the object-key suffix of a stage file format.
func Suffix(format catalog.FileFormat) string {
	if format == catalog.FormatParquet {
		return "parquet"
	}
	return "csv.gz"
}

// Key is the object key of one staged file. Batch and file numbers are
// zero-padded to at least two digits so keys sort naturally.
func Key(schemaName, tableName string, batchNumber, fileNumber int, format catalog.FileFormat) string {
	return fmt.Sprintf("%s/%s/%s_b%02d_f%02d.%s",
		schemaName, tableName, tableName, batchNumber, fileNumber, Suffix(format))
}

// Prefix is the object-key prefix holding all staged files of a table.
func Prefix(schemaName, tableName string) string {
	return schemaName + "/" + tableName + "/"
}
