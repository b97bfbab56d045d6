package milvus

import (
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// allRows matches every chunk; Milvus requires a non-empty expression for
// deletes and unbounded queries.
const allRows = fieldID + ` != ""`

// quote renders s as a Milvus string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// idsExpr matches the given primary keys.
func idsExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return fieldID + " in [" + strings.Join(quoted, ", ") + "]"
}

// afterExpr matches primary keys sorting after id, optionally within doc.
func afterExpr(id, docExpr string) string {
	expr := fieldID + " > " + quote(id)
	if docExpr != "" {
		expr = docExpr + " && " + expr
	}
	return expr
}

// splitFilter pushes a string document_id predicate to the server and
// returns the rest of the filter for matching after retrieval.
func splitFilter(filter domain.Filter) (expr string, rest domain.Filter) {
	if len(filter) == 0 {
		return "", nil
	}
	rest = make(domain.Filter, len(filter))
	for k, v := range filter {
		rest[k] = v
	}
	if v, ok := filter[domain.MetaDocumentID]; ok {
		if doc, ok := v.Str(); ok {
			expr = fieldDocumentID + " == " + quote(doc)
			delete(rest, domain.MetaDocumentID)
		}
	}
	if len(rest) == 0 {
		rest = nil
	}
	return expr, rest
}
