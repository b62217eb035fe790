package wells

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"prodsum/internal/frame"
	"prodsum/internal/services"
)

// Column names the aggregator reads or derives.
const (
	ColCountyCode = "api_county_code"
	ColSeqNum     = "api_seq_num"
	ColSidetrack  = "sidetrack_num"
	ColAPINum     = "API_num"
	ColName       = "name"
	ColOperator   = "operator_num"
	ColProdDays   = "Prod_days"
	ColOil        = "oil_prod"
	ColGas        = "gas_prod"
	ColBOE        = "boe_prod"
	ColBOEd       = "BOEd"
	ColGOR        = "GOR"
	ColWellType   = "well_type"

	// JoinSuffix marks completions columns whose names clash with production.
	JoinSuffix = "_right"
)

// BOEPerMCF converts gas volume to barrels of oil equivalent (6 MCF = 1 BOE).
const BOEPerMCF = 6.0

var (
	errUnknownColumn = errors.New("unknown column")
	errColumnType    = errors.New("unsupported column type")
	errDuplicate     = errors.New("duplicate column")
)

// Columns selects and fills the raw table columns.
type Columns struct {
	ProductionKeep      []string
	ProductionFillZero  []string
	CompletionsKeep     []string
	CompletionsFillZero []string
}

func configErr(op string, err error) error {
	return services.Wrap(services.ErrConfiguration, "aggregate", op, "check transform column lists", err)
}

func queryErr(op string, err error) error {
	return services.Wrap(services.ErrValidation, "aggregate", op, "", err)
}

// tableName names a per-year relation, e.g. production_2021.
func tableName(kind string, year int) string {
	return fmt.Sprintf("%s_%d", kind, year)
}

type schemaIndex map[string]ColumnType

func (e *Engine) schemaIndex(ctx context.Context, relation string) (schemaIndex, []ColumnType, error) {
	schema, err := e.Schema(ctx, relation)
	if err != nil {
		return nil, nil, err
	}
	schema = slices.DeleteFunc(schema, func(c ColumnType) bool { return c.Name == rowNumberColumn })
	idx := make(schemaIndex, len(schema))
	for _, c := range schema {
		idx[c.Name] = c
	}
	return idx, schema, nil
}

func (idx schemaIndex) require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := idx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errUnknownColumn, strings.Join(missing, ", "))
	}
	return nil
}

func (idx schemaIndex) requireNumeric(names ...string) error {
	if err := idx.require(names...); err != nil {
		return err
	}
	for _, name := range names {
		if c := idx[name]; !c.Numeric() {
			return fmt.Errorf("%w: %s is %s, want numeric", errColumnType, name, c.Type)
		}
	}
	return nil
}

// LoadParquet registers a Parquet file as a view named relation.
func (e *Engine) LoadParquet(ctx context.Context, relation, path string) error {
	return e.exec(ctx, "CREATE OR REPLACE VIEW "+quoteIdent(relation)+" AS SELECT * FROM "+parquetSource(path))
}

// Table materializes a relation built by the transforms in row order.
func (e *Engine) Table(ctx context.Context, relation string) (*frame.Frame, error) {
	return e.Frame(ctx, fmt.Sprintf("SELECT * EXCLUDE (%s) FROM %s ORDER BY %s",
		rowNumberColumn, quoteIdent(relation), rowNumberColumn))
}

// distinctRows keeps the first appearance of each distinct combination of the
// select list, remembering its row position.
func distinctRows(selectList []string, source string) string {
	return fmt.Sprintf("SELECT %s, min(%s) AS %s FROM %s GROUP BY ALL",
		strings.Join(selectList, ", "), rowNumberColumn, rowNumberColumn, quoteIdent(source))
}

// fillList coalesces the fill columns to their type's zero.
func fillList(keep, fill []string, types schemaIndex) []string {
	out := make([]string, 0, len(keep))
	for _, name := range keep {
		col := quoteIdent(name)
		if slices.Contains(fill, name) {
			out = append(out, fmt.Sprintf("coalesce(%s, %s) AS %s", col, types[name].zero(), col))
			continue
		}
		out = append(out, col)
	}
	return out
}

// TransformProduction turns one year's raw production relation into one row
// per well with totals, BOE, GOR and a well type, stored as table dest.
func (e *Engine) TransformProduction(ctx context.Context, source, dest string, cols Columns) error {
	raw, _, err := e.schemaIndex(ctx, source)
	if err != nil {
		return queryErr("describe production", err)
	}
	if err := raw.require(ColCountyCode, ColSeqNum, ColSidetrack); err != nil {
		return configErr("derive API_num", err)
	}
	raw[ColAPINum] = ColumnType{Name: ColAPINum, Type: "VARCHAR"}
	if err := raw.require(cols.ProductionKeep...); err != nil {
		return configErr("select production columns", err)
	}
	kept := make(schemaIndex, len(cols.ProductionKeep))
	for _, name := range cols.ProductionKeep {
		kept[name] = raw[name]
	}
	if err := kept.require(cols.ProductionFillZero...); err != nil {
		return configErr("fill production nulls", err)
	}
	if err := kept.requireNumeric(ColOil, ColGas); err != nil {
		return configErr("compute boe", err)
	}
	if err := kept.requireNumeric(ColProdDays); err != nil {
		return configErr("compute BOEd", err)
	}
	if err := kept.require(ColAPINum, ColName, ColOperator); err != nil {
		return configErr("group by well", err)
	}
	if err := kept.requireNumeric(cols.ProductionFillZero...); err != nil {
		return configErr("group by well", err)
	}

	selectList := make([]string, 0, len(cols.ProductionKeep))
	for _, name := range cols.ProductionKeep {
		if name == ColAPINum {
			selectList = append(selectList, fmt.Sprintf("api_num(%s, %s, %s) AS %s",
				quoteIdent(ColCountyCode), quoteIdent(ColSeqNum), quoteIdent(ColSidetrack), quoteIdent(ColAPINum)))
			continue
		}
		selectList = append(selectList, quoteIdent(name))
	}
	measured := make([]string, 0, len(cols.ProductionKeep))
	for _, name := range cols.ProductionKeep {
		if name != ColBOE && name != ColBOEd {
			measured = append(measured, quoteIdent(name))
		}
	}

	aggs := []string{quoteIdent(ColAPINum)}
	names := []string{ColAPINum}
	for _, name := range cols.ProductionFillZero {
		sumType := "DOUBLE"
		if kept[name].Integer() {
			sumType = "BIGINT"
		}
		aggs = append(aggs, fmt.Sprintf("CAST(sum(%s) AS %s) AS %s", quoteIdent(name), sumType, quoteIdent(name)))
		names = append(names, name)
	}
	aggs = append(aggs,
		fmt.Sprintf("sum(%s) AS %s", quoteIdent(ColBOE), quoteIdent(ColBOE)),
		fmt.Sprintf("sum(%s) AS %s", quoteIdent(ColBOEd), quoteIdent(ColBOEd)),
		fmt.Sprintf("first(%s ORDER BY %s) AS %s", quoteIdent(ColName), rowNumberColumn, quoteIdent(ColName)),
		fmt.Sprintf("first(%s ORDER BY %s) AS %s", quoteIdent(ColOperator), rowNumberColumn, quoteIdent(ColOperator)),
		fmt.Sprintf("max(%s) AS %s", quoteIdent(ColProdDays), quoteIdent(ColProdDays)),
		fmt.Sprintf("min(%s) AS %s", rowNumberColumn, rowNumberColumn),
	)
	names = append(names, ColBOE, ColBOEd, ColName, ColOperator, ColProdDays)
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return configErr("group by well", fmt.Errorf("%w: %s", errDuplicate, name))
		}
		seen[name] = struct{}{}
	}

	oil, gas := quoteIdent(ColOil), quoteIdent(ColGas)
	query := fmt.Sprintf(`CREATE OR REPLACE TABLE %[1]s AS
WITH distinct_rows AS (
	%[2]s
), filled AS (
	SELECT %[3]s, %[4]s FROM distinct_rows
), measured AS (
	SELECT %[5]s, %[4]s,
		CAST(%[6]s AS DOUBLE) + CAST(%[7]s AS DOUBLE) / %[8]g AS %[9]s
	FROM filled
), per_day AS (
	SELECT *, ieee_div(%[9]s, %[10]s) AS %[11]s FROM measured
), grouped AS (
	SELECT %[12]s FROM per_day GROUP BY %[13]s
), ratios AS (
	SELECT *, ieee_div(%[7]s, %[6]s) AS %[14]s FROM grouped
)
SELECT * EXCLUDE (%[4]s), classify_well(%[9]s, %[6]s, %[7]s, %[14]s) AS %[15]s, %[4]s FROM ratios`,
		quoteIdent(dest),
		distinctRows(selectList, source),
		strings.Join(fillList(cols.ProductionKeep, cols.ProductionFillZero, kept), ", "),
		rowNumberColumn,
		strings.Join(measured, ", "),
		oil, gas, BOEPerMCF,
		quoteIdent(ColBOE),
		quoteIdent(ColProdDays),
		quoteIdent(ColBOEd),
		strings.Join(aggs, ", "),
		quoteIdent(ColAPINum),
		quoteIdent(ColGOR),
		quoteIdent(ColWellType),
	)
	if err := e.exec(ctx, query); err != nil {
		return queryErr("aggregate production", err)
	}
	return nil
}

// TransformCompletions keeps the configured columns, drops duplicate rows and
// fills nulls, stored as table dest.
func (e *Engine) TransformCompletions(ctx context.Context, source, dest string, cols Columns) error {
	raw, _, err := e.schemaIndex(ctx, source)
	if err != nil {
		return queryErr("describe completions", err)
	}
	if err := raw.require(cols.CompletionsKeep...); err != nil {
		return configErr("select completions columns", err)
	}
	kept := make(schemaIndex, len(cols.CompletionsKeep))
	selectList := make([]string, 0, len(cols.CompletionsKeep))
	for _, name := range cols.CompletionsKeep {
		kept[name] = raw[name]
		selectList = append(selectList, quoteIdent(name))
	}
	if err := kept.require(cols.CompletionsFillZero...); err != nil {
		return configErr("fill completions nulls", err)
	}

	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT %s, %s FROM (%s)",
		quoteIdent(dest),
		strings.Join(fillList(cols.CompletionsKeep, cols.CompletionsFillZero, kept), ", "),
		rowNumberColumn,
		distinctRows(selectList, source),
	)
	if err := e.exec(ctx, query); err != nil {
		return queryErr("transform completions", err)
	}
	return nil
}

// JoinLatest full outer joins each production table with the most recent
// completions table on API_num and, when removeInactive is set, drops rows
// without production days. The key is coalesced from both sides; completions
// columns whose names clash with production get JoinSuffix. Rows follow the
// production order, then unmatched completions rows.
func (e *Engine) JoinLatest(ctx context.Context, production, completions map[int]string, removeInactive bool) (map[int]*frame.Frame, error) {
	if len(completions) == 0 {
		if len(production) == 0 {
			return map[int]*frame.Frame{}, nil
		}
		return nil, services.Wrap(services.ErrValidation, "aggregate", "join completions", "no completions table available", nil)
	}
	latest := completions[slices.Max(slices.Collect(maps.Keys(completions)))]
	right, rightCols, err := e.schemaIndex(ctx, latest)
	if err != nil {
		return nil, queryErr("describe completions", err)
	}
	if err := right.require(ColAPINum); err != nil {
		return nil, configErr("join completions", fmt.Errorf("right: %w", err))
	}

	out := make(map[int]*frame.Frame, len(production))
	for _, year := range slices.Sorted(maps.Keys(production)) {
		left, leftCols, err := e.schemaIndex(ctx, production[year])
		if err != nil {
			return nil, queryErr("describe production", err)
		}
		if err := left.require(ColAPINum); err != nil {
			return nil, configErr(fmt.Sprintf("join %d", year), fmt.Errorf("left: %w", err))
		}
		if l, r := left[ColAPINum].Type, right[ColAPINum].Type; l != r {
			return nil, configErr(fmt.Sprintf("join %d", year), fmt.Errorf("%w: join key %s is %s on the left and %s on the right", errColumnType, ColAPINum, l, r))
		}

		selectList := make([]string, 0, len(leftCols)+len(rightCols))
		taken := make(map[string]struct{}, len(leftCols)+len(rightCols))
		for _, c := range leftCols {
			if c.Name == ColAPINum {
				selectList = append(selectList, fmt.Sprintf("coalesce(p.%[1]s, c.%[1]s) AS %[1]s", quoteIdent(ColAPINum)))
			} else {
				selectList = append(selectList, "p."+quoteIdent(c.Name))
			}
			taken[c.Name] = struct{}{}
		}
		for _, c := range rightCols {
			if c.Name == ColAPINum {
				continue
			}
			name := c.Name
			if _, clash := taken[name]; clash {
				name += JoinSuffix
			}
			taken[name] = struct{}{}
			selectList = append(selectList, fmt.Sprintf("c.%s AS %s", quoteIdent(c.Name), quoteIdent(name)))
		}

		where := ""
		if removeInactive {
			if err := left.require(ColProdDays); err != nil {
				return nil, configErr("filter inactive wells", err)
			}
			where = fmt.Sprintf("WHERE has_production_days(p.%s)", quoteIdent(ColProdDays))
		}
		query := fmt.Sprintf(`SELECT %s
FROM %s AS p FULL OUTER JOIN %s AS c ON p.%s = c.%s
%s
ORDER BY p.%s NULLS LAST, c.%s`,
			strings.Join(selectList, ", "),
			quoteIdent(production[year]), quoteIdent(latest),
			quoteIdent(ColAPINum), quoteIdent(ColAPINum),
			where,
			rowNumberColumn, rowNumberColumn,
		)
		joined, err := e.Frame(ctx, query)
		if err != nil {
			return nil, queryErr(fmt.Sprintf("join %d", year), err)
		}
		out[year] = joined
	}
	return out, nil
}
