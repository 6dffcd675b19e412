package solax

import "reflect"

// SubsetRegistry の Subset を返すメソッドが、組み込みカタログの部分集合になります。
// prop_*.go にメソッドを追加すると自動的に登録されます。
type SubsetRegistry struct{}

// BuiltinSubsets is the built-in catalog in merge order.
var BuiltinSubsets []Subset

// reflect 経由の参照は初期化順の依存に含まれないので、
// prop_*.go の変数が揃った後の init で組み立てる
func init() {
	BuiltinSubsets = BuildSubsets()
}

// BuildSubsets collects every SubsetRegistry method returning a Subset.
// Methods are visited in name order, so the result is deterministic.
func BuildSubsets() []Subset {
	var result []Subset

	var registry any = SubsetRegistry{}
	t := reflect.TypeOf(registry)
	v := reflect.ValueOf(registry)
	subsetType := reflect.TypeOf(Subset{})
	for i := range t.NumMethod() {
		method := t.Method(i)
		if method.Type.NumIn() != 1 || method.Type.NumOut() != 1 || method.Type.Out(0) != subsetType {
			continue
		}
		subset := v.Method(i).Call(nil)[0].Interface().(Subset)
		result = append(result, subset)
	}
	return result
}
