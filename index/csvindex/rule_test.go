package csvindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/tablo/index"
)

func TestRules(t *testing.T) {
	columns := map[string]int{"id": 0, "status": 1}
	rec := func(fields ...string) index.Record {
		return index.NewRecord(fields, columns)
	}

	t.Run("IncludeAll", func(t *testing.T) {
		rule := IncludeAll()
		assert.Equal(t, index.FlagInclude, rule(rec("1", "whatever")))
	})

	t.Run("MatchColumn", func(t *testing.T) {
		rule := MatchColumn("status", "active", "deleted")

		assert.Equal(t, index.FlagInclude, rule(rec("1", "active")))
		assert.Equal(t, index.FlagExclude, rule(rec("2", "deleted")))
		assert.Equal(t, index.FlagSkip, rule(rec("3", "pending")))
		// Row too short for the column.
		assert.Equal(t, index.FlagSkip, rule(rec("4")))
	})

	t.Run("MatchColumnUnknown", func(t *testing.T) {
		rule := MatchColumn("nope", "a", "b")
		assert.Equal(t, index.FlagSkip, rule(rec("1", "active")))
	})

	t.Run("MatchField", func(t *testing.T) {
		rule := MatchField(1, "Y", "N")

		assert.Equal(t, index.FlagInclude, rule(rec("1", "Y")))
		assert.Equal(t, index.FlagExclude, rule(rec("2", "N")))
		assert.Equal(t, index.FlagSkip, rule(rec("3", "?")))
		assert.Equal(t, index.FlagSkip, rule(rec("only-one")))
		assert.Equal(t, index.FlagSkip, MatchField(-1, "Y", "N")(rec("1", "Y")))
	})
}

func TestKeyHelper(t *testing.T) {
	assert.Equal(t, "solo", Key("solo"))
	assert.Equal(t, "a"+keySeparator+"b", Key("a", "b"))
}
