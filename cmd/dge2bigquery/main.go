// dge2bigquery streams a tissuedge result table into a BigQuery table.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"cloud.google.com/go/bigquery"
	_ "github.com/carbocation/tissuedge/compileinfoprint"
	"github.com/carbocation/tissuedge/dge"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// batchSize rows are sent per streaming insert request.
const batchSize = 500

func main() {
	var result, project, datasetName, tableName, credentials string
	var create bool
	flag.StringVar(&result, "result", "", "Result table written by tissuedge (.tsv, .tsv.gz or .sqlite).")
	flag.StringVar(&project, "project", "", "Google Cloud project that owns the dataset.")
	flag.StringVar(&datasetName, "dataset", "", "BigQuery dataset name.")
	flag.StringVar(&tableName, "table", "", "BigQuery table name.")
	flag.StringVar(&credentials, "credentials", "", "(Optional) Service account JSON file. Application default credentials are used otherwise.")
	flag.BoolVar(&create, "create", false, "Create the table with the result schema if it does not exist.")
	flag.Parse()

	if result == "" || project == "" || datasetName == "" || tableName == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	table, err := dge.Read(result)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("Read %d rows from %s\n", len(table), result)

	ctx := context.Background()

	var opts []option.ClientOption
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		log.Fatalln("Connecting to BigQuery:", err)
	}
	defer client.Close()

	bqTable := client.Dataset(datasetName).Table(tableName)

	if create {
		if err := createTable(ctx, bqTable); err != nil {
			log.Fatalln(err)
		}
	}

	if err := insert(ctx, bqTable, table); err != nil {
		log.Fatalln(err)
	}

	log.Printf("Inserted %d rows into %s.%s.%s\n", len(table), project, datasetName, tableName)
}

func createTable(ctx context.Context, t *bigquery.Table) error {
	schema, err := bigquery.InferSchema(dge.Row{})
	if err != nil {
		return err
	}

	err = t.Create(ctx, &bigquery.TableMetadata{
		Schema:      schema,
		Description: "Quasi-likelihood F-test results by tumor type and contrast",
	})

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		log.Println("Table already exists; appending")
		return nil
	}

	return err
}

func insert(ctx context.Context, t *bigquery.Table, table dge.Table) error {
	inserter := t.Inserter()

	for start := 0; start < len(table); start += batchSize {
		end := start + batchSize
		if end > len(table) {
			end = len(table)
		}

		if err := inserter.Put(ctx, []dge.Row(table[start:end])); err != nil {
			return err
		}

		if end%(batchSize*100) == 0 {
			log.Printf("Inserted %d rows\n", end)
		}
	}

	return nil
}
