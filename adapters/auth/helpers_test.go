package auth_test

import (
	"io"
	"log"
	"testing"

	"gorm.io/gorm"

	"loadboard/adapters/database/databasetest"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

func setupTest(t *testing.T) (*gorm.DB, *databasetest.Fixtures) {
	t.Helper()
	db := databasetest.New(t)
	return db, databasetest.NewFixtures(t, db)
}
