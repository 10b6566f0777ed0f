package pagan

import (
	"github.com/Velocidex/ordereddict"
)

// Plain decodes a whole view tree into plain values: an *ordereddict.Dict
// for objects, []any for arrays, and scalars and []byte as read. Methods are
// skipped.
func Plain(v *View) (any, error) {
	keys := v.Keys()
	if isArray(v) {
		items := make([]any, 0, len(keys))
		for _, k := range keys {
			item, ok, err := plainMember(v, k)
			if err != nil {
				return nil, err
			}
			if ok {
				items = append(items, item)
			}
		}
		return items, nil
	}

	dict := ordereddict.NewDict()
	for _, k := range keys {
		item, ok, err := plainMember(v, k)
		if err != nil {
			return nil, err
		}
		if ok {
			dict.Set(k, item)
		}
	}
	return dict, nil
}

func plainMember(v *View, k string) (any, bool, error) {
	val, err := v.Get(k)
	if err != nil {
		return nil, false, err
	}
	switch val.Kind() {
	case KindObject:
		item, err := Plain(val.View())
		return item, err == nil, err
	case KindScalar, KindBuffer:
		return val.Interface(), true, nil
	default:
		return nil, false, nil
	}
}
