package archive

import (
	"io/fs"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/m3rciful/instarepost/migrations"
)

// tableColumns returns the column names of the reposts table as created by
// the embedded up migration.
func tableColumns(t *testing.T) []string {
	t.Helper()
	raw, err := fs.ReadFile(migrations.FS, "0001_create_reposts.up.sql")
	require.NoError(t, err)
	m := regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS reposts \((.*?)\);`).FindSubmatch(raw)
	require.NotNil(t, m, "reposts table definition not found")

	var cols []string
	for _, line := range strings.Split(string(m[1]), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cols = append(cols, strings.ToLower(fields[0]))
	}
	return cols
}

func entryTags(key string) []string {
	var tags []string
	typ := reflect.TypeOf(Entry{})
	for i := range typ.NumField() {
		tag, _, _ := strings.Cut(typ.Field(i).Tag.Get(key), ",")
		tags = append(tags, tag)
	}
	return tags
}

func splitColumns(list string) []string {
	var cols []string
	for _, c := range strings.Split(list, ",") {
		cols = append(cols, strings.TrimSpace(c))
	}
	return cols
}

func TestEntryDBTagsMatchMigration(t *testing.T) {
	cols := tableColumns(t)
	require.Len(t, cols, 10)
	assert.ElementsMatch(t, cols, entryTags("db"))

	insert := regexp.MustCompile(`(?s)INSERT INTO reposts\s*\((.*?)\)`).FindStringSubmatch(insertEntrySQL)
	require.NotNil(t, insert)
	assert.ElementsMatch(t, cols, splitColumns(insert[1]))

	sel := regexp.MustCompile(`(?s)SELECT (.*?)\s+FROM reposts`).FindStringSubmatch(listEntriesSQL)
	require.NotNil(t, sel)
	assert.ElementsMatch(t, cols, splitColumns(sel[1]))
}

func TestInsertBindsEveryEntryField(t *testing.T) {
	e := Entry{
		ID: "a1", PostID: "p1", ChatID: 42, UserID: 7,
		SourceURL: "https://www.instagram.com/p/abc/", Shortcode: "abc",
		Author: "alice", Caption: "hi", MediaCount: 3,
		PostedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	q, args, err := sqlx.Named(insertEntrySQL, e)
	require.NoError(t, err)
	assert.NotContains(t, q, ":")
	assert.Equal(t, []any{e.ID, e.PostID, e.ChatID, e.UserID, e.SourceURL, e.Shortcode,
		e.Author, e.Caption, e.MediaCount, e.PostedAt}, args)
	assert.Contains(t, sqlx.Rebind(sqlx.DOLLAR, q), "$10")
}

func TestEntryBSONDocument(t *testing.T) {
	want := Entry{
		ID: "a1", PostID: "p1", ChatID: 42, UserID: 7,
		SourceURL: "https://www.instagram.com/p/abc/", Shortcode: "abc",
		Author: "alice", Caption: "hi", MediaCount: 3,
		PostedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := bson.Marshal(want)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	var keys []string
	for k := range doc {
		keys = append(keys, k)
	}
	// Same fields as the SQL table, with id stored as the document key.
	var cols []string
	for _, c := range tableColumns(t) {
		if c == "id" {
			c = "_id"
		}
		cols = append(cols, c)
	}
	assert.ElementsMatch(t, cols, keys)
	// List filters and sorts on these.
	assert.Equal(t, int64(42), doc["chat_id"])
	assert.Contains(t, doc, "posted_at")

	var got Entry
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.True(t, want.PostedAt.Equal(got.PostedAt))
	got.PostedAt = want.PostedAt
	assert.Equal(t, want, got)
}
