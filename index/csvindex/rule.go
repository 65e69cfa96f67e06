package csvindex

import "github.com/hupe1980/tablo/index"

// IncludeAll is a FlagRule that includes every well-formed row.
func IncludeAll() index.FlagRule {
	return func(index.Record) index.RowFlag {
		return index.FlagInclude
	}
}

// MatchColumn builds the yes/no/skip rule over a single column: a row
// whose column equals includeValue is included, equals excludeValue is
// excluded, anything else (including a missing column) is skipped.
func MatchColumn(column, includeValue, excludeValue string) index.FlagRule {
	return func(rec index.Record) index.RowFlag {
		v, ok := rec.Column(column)
		if !ok {
			return index.FlagSkip
		}
		switch v {
		case includeValue:
			return index.FlagInclude
		case excludeValue:
			return index.FlagExclude
		default:
			return index.FlagSkip
		}
	}
}

// MatchField is MatchColumn for datasets without a header, addressing the
// column by position.
func MatchField(field int, includeValue, excludeValue string) index.FlagRule {
	return func(rec index.Record) index.RowFlag {
		if field < 0 || field >= len(rec.Fields) {
			return index.FlagSkip
		}
		switch rec.Fields[field] {
		case includeValue:
			return index.FlagInclude
		case excludeValue:
			return index.FlagExclude
		default:
			return index.FlagSkip
		}
	}
}
