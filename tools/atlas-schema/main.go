//go:generate sh -c "go run . > ../../migrations/schema.sql"

// atlas-schema 輸出 gorm 模型對應的 PostgreSQL DDL，供 atlas 比對與產生遷移檔
//
//	atlas migrate diff --dev-url "docker://postgres/16/dev" \
//		--to "external_schema://gorm" --dir "file://migrations"
package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"loadboard/models"
)

func main() {
	stmts, err := gormschema.New("postgres").Load(models.All()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}
	if _, err := io.WriteString(os.Stdout, stmts); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}
