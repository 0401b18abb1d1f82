package sqlite

import (
	"fmt"
	"strings"

	"github.com/silvermint/idserver/internal/domain"
	"github.com/silvermint/idserver/internal/errors"
)

// principalColumns maps ordering columns onto the shared principal schema.
// Users and admins use identical column names so one mapping serves both.
var principalColumns = map[domain.Column]string{
	domain.ColumnByID:          "id",
	domain.ColumnByName:        "name",
	domain.ColumnByRealName:    "realname",
	domain.ColumnByTimeCreated: "created",
	domain.ColumnByTimeUpdated: "updated",
}

func principalColumn(c domain.Column) (string, error) {
	col, ok := principalColumns[c]
	if !ok {
		return "", errors.New(errors.CodeIOError, fmt.Sprintf("no sort column for %s", c))
	}
	return col, nil
}

// searchBuilder accumulates WHERE conditions and their arguments for the
// count and keyset search queries.
type searchBuilder struct {
	conds []string
	args  []any
}

func (b *searchBuilder) add(cond string, args ...any) {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
}

// timeRanges constrains the created and updated columns. Parameters arrive
// normalized, so both ranges are always populated.
func (b *searchBuilder) timeRanges(p domain.SearchParameters) {
	b.add("created >= ? AND created <= ?", toMicros(p.Created.Lower), toMicros(p.Created.Upper))
	b.add("updated >= ? AND updated <= ?", toMicros(p.Updated.Lower), toMicros(p.Updated.Upper))
}

// filter matches the case-folded filter against the given folded columns.
func (b *searchBuilder) filter(p domain.SearchParameters, foldColumns ...string) {
	if p.Filter == "" {
		return
	}
	pattern := likePattern(p.Filter)
	matches := make([]string, len(foldColumns))
	for i, col := range foldColumns {
		matches[i] = col + ` LIKE ? ESCAPE '\'`
		b.args = append(b.args, pattern)
	}
	b.conds = append(b.conds, "("+strings.Join(matches, " OR ")+")")
}

// keyset adds the boundary condition for cursor continuation. The tie-break
// column keeps the total order strict when the sort column has duplicates.
func (b *searchBuilder) keyset(sortColumn string, sortValue any, tieColumn string, tieValue any, after bool) {
	cmp := ">"
	if !after {
		cmp = "<"
	}
	b.add(
		fmt.Sprintf("(%s %s ? OR (%s = ? AND %s %s ?))", sortColumn, cmp, sortColumn, tieColumn, cmp),
		sortValue, sortValue, tieValue,
	)
}

func (b *searchBuilder) where() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// orderLimit renders the ORDER BY and LIMIT tail. Fetch order is the search
// order for forward fetches and its reverse for backward ones; the caller is
// responsible for flipping after before this point.
func orderLimit(sortColumn, tieColumn string, ascending bool, limit int) string {
	dir := "ASC"
	if !ascending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s %s LIMIT %d", sortColumn, dir, tieColumn, dir, limit)
}

// likePattern builds a substring LIKE pattern, escaping SQL wildcards in
// the user-supplied filter.
func likePattern(filter string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(filter)
	return "%" + escaped + "%"
}

// fetchDirection resolves the physical fetch order and boundary side from
// the search order and the navigation direction. Backward fetches run in
// reverse order and take rows on the other side of the boundary.
func fetchDirection(ascending, backward bool) (fetchAscending, after bool) {
	eff := ascending != backward
	return eff, eff
}
