package milvus

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

type fakeRow struct {
	id     string
	vector []float32
	doc    string
	index  int64
	text   string
	meta   string
}

// fakeMilvus keeps one collection in memory and understands the
// expressions the store builds.
type fakeMilvus struct {
	mu       sync.Mutex
	exists   bool
	loaded   bool
	dims     int
	rows     map[string]fakeRow
	failWith error
	creates  int
	drops    int
	exprs    []string
}

func newFakeMilvus() *fakeMilvus {
	return &fakeMilvus{rows: map[string]fakeRow{}}
}

func (f *fakeMilvus) HasCollection(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return false, f.failWith
	}
	return f.exists, nil
}

func (f *fakeMilvus) CreateCollection(_ context.Context, schema *entity.Schema, _ int32, _ ...client.CreateCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range schema.Fields {
		if field.Name == fieldVector {
			f.dims, _ = strconv.Atoi(field.TypeParams["dim"])
		}
	}
	f.exists = true
	f.creates++
	return nil
}

func (f *fakeMilvus) CreateIndex(context.Context, string, string, entity.Index, bool, ...client.IndexOption) error {
	return nil
}

func (f *fakeMilvus) LoadCollection(context.Context, string, bool, ...client.LoadCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = true
	return nil
}

func (f *fakeMilvus) DropCollection(context.Context, string, ...client.DropCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists, f.loaded = false, false
	f.rows = map[string]fakeRow{}
	f.drops++
	return nil
}

func (f *fakeMilvus) Upsert(_ context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	cols := map[string]entity.Column{}
	for _, c := range columns {
		cols[c.Name()] = c
	}
	ids := cols[fieldID].(*entity.ColumnVarChar).Data()
	vectors := cols[fieldVector].(*entity.ColumnFloatVector).Data()
	docs := cols[fieldDocumentID].(*entity.ColumnVarChar).Data()
	indices := cols[fieldChunkIndex].(*entity.ColumnInt64).Data()
	texts := cols[fieldText].(*entity.ColumnVarChar).Data()
	metas := cols[fieldMetadata].(*entity.ColumnVarChar).Data()
	for i, id := range ids {
		if len(vectors[i]) != f.dims {
			return nil, errors.New("dimension mismatch")
		}
		f.rows[id] = fakeRow{id: id, vector: vectors[i], doc: docs[i], index: indices[i], text: texts[i], meta: metas[i]}
	}
	return entity.NewColumnVarChar(fieldID, ids), nil
}

func (f *fakeMilvus) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exprs = append(f.exprs, expr)
	for _, r := range f.match(expr) {
		delete(f.rows, r.id)
	}
	return nil
}

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []string, expr string, _ []string,
	vectors []entity.Vector, _ string, _ entity.MetricType, topK int, _ entity.SearchParam,
	_ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.exprs = append(f.exprs, expr)

	query := []float32(vectors[0].(entity.FloatVector))
	rows := f.match(expr)
	scores := make(map[string]float32, len(rows))
	for _, r := range rows {
		scores[r.id] = cosine(query, r.vector)
	}
	sort.Slice(rows, func(i, j int) bool { return scores[rows[i].id] > scores[rows[j].id] })
	if len(rows) > topK {
		rows = rows[:topK]
	}
	result := client.SearchResult{ResultCount: len(rows), Fields: resultSet(rows)}
	for _, r := range rows {
		result.Scores = append(result.Scores, scores[r.id])
	}
	return []client.SearchResult{result}, nil
}

func (f *fakeMilvus) Query(_ context.Context, _ string, _ []string, expr string, outputFields []string,
	_ ...client.SearchQueryOptionFunc) (client.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.exprs = append(f.exprs, expr)

	if len(outputFields) == 1 && outputFields[0] == "count(*)" {
		return client.ResultSet{entity.NewColumnInt64("count(*)", []int64{int64(len(f.rows))})}, nil
	}
	rows := f.match(expr)
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	return resultSet(rows), nil
}

func (f *fakeMilvus) Close() error { return nil }

// match evaluates the expression forms built in expr.go.
func (f *fakeMilvus) match(expr string) []fakeRow {
	var out []fakeRow
	for _, r := range f.rows {
		if evalExpr(expr, r) {
			out = append(out, r)
		}
	}
	return out
}

func evalExpr(expr string, r fakeRow) bool {
	if expr == "" || expr == allRows {
		return true
	}
	if left, right, ok := strings.Cut(expr, " && "); ok {
		return evalExpr(left, r) && evalExpr(right, r)
	}
	if rest, ok := strings.CutPrefix(expr, fieldDocumentID+" == "); ok {
		return r.doc == unquote(rest)
	}
	if rest, ok := strings.CutPrefix(expr, fieldID+" > "); ok {
		return r.id > unquote(rest)
	}
	if rest, ok := strings.CutPrefix(expr, fieldID+" in ["); ok {
		for _, q := range strings.Split(strings.TrimSuffix(rest, "]"), ", ") {
			if r.id == unquote(q) {
				return true
			}
		}
		return false
	}
	panic("unsupported expression: " + expr)
}

func unquote(s string) string {
	u, err := strconv.Unquote(s)
	if err != nil {
		panic(err)
	}
	return u
}

func resultSet(rows []fakeRow) client.ResultSet {
	ids := make([]string, len(rows))
	texts := make([]string, len(rows))
	metas := make([]string, len(rows))
	for i, r := range rows {
		ids[i], texts[i], metas[i] = r.id, r.text, r.meta
	}
	return client.ResultSet{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldMetadata, metas),
	}
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
