package protocol

import (
	"maps"
	"slices"

	"solax-modbus/solax"
)

// ValueToProtocol は solax.Value を送信用の形式に変換する
func ValueToProtocol(v solax.Value) ValueData {
	data := ValueData{Status: v.Status.String()}
	switch v.Status {
	case solax.StatusOK:
		data.String = v.String()
		data.Unit = v.Unit
		if v.Numeric() {
			n := v.Number
			data.Number = &n
		}
	case solax.StatusUnknownCode:
		data.String = v.String()
		n := v.Number
		data.Number = &n
	}
	return data
}

// ValuesToProtocol converts a decoded batch.
func ValuesToProtocol(values map[string]solax.Value) map[string]ValueData {
	result := make(map[string]ValueData, len(values))
	for key, v := range values {
		result[key] = ValueToProtocol(v)
	}
	return result
}

// EntityToProtocol は EntityDesc をクライアント向けの説明に変換する
func EntityToProtocol(catalog *solax.Catalog, e solax.EntityDesc) Entity {
	entity := Entity{
		Key:         e.Key,
		Name:        e.Name,
		Kind:        e.Kind().String(),
		Subset:      catalog.Origin(e.Key),
		Writable:    e.Writable(),
		Derived:     e.Register == nil,
		Unit:        e.Meta.Unit,
		DeviceClass: e.Meta.DeviceClass,
		Hidden:      e.Meta.DisabledDefault,
	}
	if e.Register != nil {
		entity.Register = e.Register.Address.String()
	}
	if n, ok := e.Spec.(solax.NumberDesc); ok {
		entity.Min, entity.Max, entity.Step = &n.Min, &n.Max, &n.Step
	}
	options := e.Options()
	for _, code := range slices.Sorted(maps.Keys(options)) {
		entity.Options = append(entity.Options, OptionData{Code: code, Label: options[code]})
	}
	return entity
}

// CatalogToProtocol lists the catalog in key order.
func CatalogToProtocol(catalog *solax.Catalog) CatalogData {
	data := CatalogData{
		Capability: catalog.Flags().String(),
		Subsets:    catalog.Subsets(),
		Entities:   []Entity{},
	}
	for _, e := range catalog.Entities() {
		data.Entities = append(data.Entities, EntityToProtocol(catalog, e))
	}
	return data
}
