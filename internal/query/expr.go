// Package query はフィード検索条件の式ツリーを定義する。
//
// ひとつの述語表現を2つのバックエンドで評価する:
// PostgreSQLのWHERE句への変換（ToSQL）と、
// 人気順マージ経路でのメモリ内評価（Eval）。
// どちらの経路でも同一のフィルタ意味論が保証される。
package query

import (
	"fmt"
	"strings"
)

// Expr はフィルタ式ツリーのノードを表す。
type Expr interface {
	isExpr()
}

// And は全ての子式が真の場合に真となる論理積ノード。
type And struct {
	Exprs []Expr
}

// Or はいずれかの子式が真の場合に真となる論理和ノード。
type Or struct {
	Exprs []Expr
}

// Eq はフィールドの完全一致ノード。
type Eq struct {
	Field string
	Value string
}

// ILike はフィールドの大文字小文字を区別しない部分一致ノード。
// パターンは常にリテラル部分文字列として扱われる。
// SQLでは ILIKE '%pattern%' に変換され、LIKEメタ文字（\ % _）は
// メモリ内評価と同じ意味論になるようエスケープされる。
type ILike struct {
	Field   string
	Pattern string
}

// In はフィールド値が候補集合に含まれる場合に真となるノード。
type In struct {
	Field  string
	Values []string
}

func (And) isExpr()   {}
func (Or) isExpr()    {}
func (Eq) isExpr()    {}
func (ILike) isExpr() {}
func (In) isExpr()    {}

// FieldGetter は評価対象レコードからフィールド値を取り出す関数。
// メモリ内評価の際、式のフィールド名をレコードの値に解決する。
type FieldGetter func(field string) string

// Eval は式をメモリ内で評価する。
// nil式は「条件なし」として常に真を返す。
func Eval(e Expr, get FieldGetter) bool {
	if e == nil {
		return true
	}
	switch n := e.(type) {
	case And:
		for _, child := range n.Exprs {
			if !Eval(child, get) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range n.Exprs {
			if Eval(child, get) {
				return true
			}
		}
		return len(n.Exprs) == 0
	case Eq:
		return get(n.Field) == n.Value
	case ILike:
		return strings.Contains(strings.ToLower(get(n.Field)), strings.ToLower(n.Pattern))
	case In:
		v := get(n.Field)
		for _, candidate := range n.Values {
			if v == candidate {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ColumnResolver は式のフィールド名をSQLカラム名に解決する関数。
// テーブルエイリアスの付与はリポジトリ側の責務。
type ColumnResolver func(field string) string

// ToSQL は式をWHERE句の断片とプレースホルダ引数に変換する。
// argIndexは次に使用する$nの番号で、消費した分だけ進められる。
// nil式は空文字列を返す（呼び出し側で条件なしとして扱う）。
func ToSQL(e Expr, col ColumnResolver, argIndex *int) (string, []interface{}) {
	if e == nil {
		return "", nil
	}
	switch n := e.(type) {
	case And:
		return joinSQL(n.Exprs, " AND ", col, argIndex)
	case Or:
		return joinSQL(n.Exprs, " OR ", col, argIndex)
	case Eq:
		clause := fmt.Sprintf("%s = $%d", col(n.Field), *argIndex)
		*argIndex++
		return clause, []interface{}{n.Value}
	case ILike:
		clause := fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, col(n.Field), *argIndex)
		*argIndex++
		return clause, []interface{}{"%" + escapeLikePattern(n.Pattern) + "%"}
	case In:
		placeholders := make([]string, len(n.Values))
		args := make([]interface{}, len(n.Values))
		for i, v := range n.Values {
			placeholders[i] = fmt.Sprintf("$%d", *argIndex)
			args[i] = v
			*argIndex++
		}
		clause := fmt.Sprintf("%s IN (%s)", col(n.Field), strings.Join(placeholders, ", "))
		return clause, args
	default:
		return "", nil
	}
}

// escapeLikePattern はLIKEメタ文字（\ % _）をエスケープする。
// Evalはパターンをリテラル部分文字列として扱うため、
// SQL側でも同じ入力が同じ集合にマッチするようにする。
func escapeLikePattern(pattern string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(pattern)
}

// joinSQL は子式のSQL断片を指定の区切りで結合する。
func joinSQL(exprs []Expr, sep string, col ColumnResolver, argIndex *int) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	for _, child := range exprs {
		clause, childArgs := ToSQL(child, col, argIndex)
		if clause == "" {
			continue
		}
		clauses = append(clauses, "("+clause+")")
		args = append(args, childArgs...)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return strings.Join(clauses, sep), args
}
