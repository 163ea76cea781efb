package script

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/Shopify/go-lua"
)

// setupSandbox creates a safe Lua environment.
func setupSandbox(l *lua.State) {
	// Load only safe libraries
	lua.Require(l, "_G", lua.BaseOpen, true)
	l.Pop(1)
	lua.Require(l, "string", lua.StringOpen, true)
	l.Pop(1)
	lua.Require(l, "table", lua.TableOpen, true)
	l.Pop(1)
	lua.Require(l, "math", lua.MathOpen, true)
	l.Pop(1)

	// os is reduced to clock/date/time.
	lua.Require(l, "os", lua.OSOpen, true)
	l.Pop(1)
	l.Global("os")
	for _, name := range []string{"execute", "exit", "getenv", "remove", "rename", "setlocale", "tmpname"} {
		l.PushNil()
		l.SetField(-2, name)
	}
	l.Pop(1)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}

	l.Register("json_encode", jsonEncode)
	l.Register("json_decode", jsonDecode)
	l.Register("str_trim", strTrim)
	l.Register("str_split", strSplit)
	l.Register("str_contains", strContains)
	l.Register("str_replace", strReplace)
	l.Register("type_of", typeOf)
}

// pushValue converts a Go value to Lua. Slices become 1-based array tables
// and string-keyed maps become tables; anything else without a Lua
// counterpart is pushed as its JSON text.
func pushValue(l *lua.State, v any) {
	switch val := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(val)
	case int:
		l.PushInteger(val)
	case int64:
		l.PushNumber(float64(val))
	case int32:
		l.PushInteger(int(val))
	case uint64:
		l.PushNumber(float64(val))
	case uint32:
		l.PushNumber(float64(val))
	case float64:
		l.PushNumber(val)
	case float32:
		l.PushNumber(float64(val))
	case string:
		l.PushString(val)
	case []any:
		l.NewTable()
		for i, item := range val {
			l.PushInteger(i + 1)
			pushValue(l, item)
			l.SetTable(-3)
		}
	case map[string]any:
		l.NewTable()
		for k, item := range val {
			l.PushString(k)
			pushValue(l, item)
			l.SetTable(-3)
		}
	default:
		pushReflect(l, v)
	}
}

func pushReflect(l *lua.State, v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		l.NewTable()
		for i := 0; i < rv.Len(); i++ {
			l.PushInteger(i + 1)
			pushValue(l, rv.Index(i).Interface())
			l.SetTable(-3)
		}
		return
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			l.NewTable()
			iter := rv.MapRange()
			for iter.Next() {
				l.PushString(iter.Key().String())
				pushValue(l, iter.Value().Interface())
				l.SetTable(-3)
			}
			return
		}
	case reflect.Int, reflect.Int8, reflect.Int16:
		l.PushInteger(int(rv.Int()))
		return
	case reflect.Uint, reflect.Uint8, reflect.Uint16:
		l.PushNumber(float64(rv.Uint()))
		return
	}

	if data, err := json.Marshal(v); err == nil {
		l.PushString(string(data))
	} else {
		l.PushNil()
	}
}

// pullValue converts a Lua value to Go. Numbers come back as float64;
// tables whose keys are all positive numbers become []any, other tables
// become map[string]any.
func pullValue(l *lua.State, idx int) any {
	switch l.TypeOf(idx) {
	case lua.TypeNil:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	case lua.TypeTable:
		return pullTable(l, idx)
	default:
		return nil
	}
}

func pullTable(l *lua.State, idx int) any {
	// Work on a copy at the top of the stack so relative indexes stay valid.
	l.PushValue(idx)
	defer l.Pop(1)

	isArray := true
	maxIndex := 0

	l.PushNil()
	for l.Next(-2) {
		if l.TypeOf(-2) != lua.TypeNumber {
			isArray = false
			l.Pop(2)
			break
		}
		n, _ := l.ToNumber(-2)
		if i := int(n); i > maxIndex {
			maxIndex = i
		}
		l.Pop(1)
	}

	if isArray && maxIndex > 0 {
		arr := make([]any, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.PushInteger(i)
			l.Table(-2)
			arr[i-1] = pullValue(l, -1)
			l.Pop(1)
		}
		return arr
	}

	obj := make(map[string]any)
	l.PushNil()
	for l.Next(-2) {
		var key string
		if l.TypeOf(-2) == lua.TypeNumber {
			n, _ := l.ToNumber(-2)
			key = fmt.Sprint(n)
		} else {
			key, _ = l.ToString(-2)
		}
		obj[key] = pullValue(l, -1)
		l.Pop(1)
	}
	return obj
}

// Lua utility functions

func jsonEncode(l *lua.State) int {
	value := pullValue(l, 1)
	data, err := json.Marshal(value)
	if err != nil {
		l.PushNil()
		l.PushString(err.Error())
		return 2
	}
	l.PushString(string(data))
	return 1
}

func jsonDecode(l *lua.State) int {
	str := lua.CheckString(l, 1)
	var value any
	if err := json.Unmarshal([]byte(str), &value); err != nil {
		l.PushNil()
		l.PushString(err.Error())
		return 2
	}
	pushValue(l, value)
	return 1
}

func strTrim(l *lua.State) int {
	l.PushString(strings.TrimSpace(lua.CheckString(l, 1)))
	return 1
}

func strSplit(l *lua.State) int {
	str := lua.CheckString(l, 1)
	sep := lua.CheckString(l, 2)

	l.NewTable()
	for i, part := range strings.Split(str, sep) {
		l.PushInteger(i + 1)
		l.PushString(part)
		l.SetTable(-3)
	}
	return 1
}

func strContains(l *lua.State) int {
	l.PushBoolean(strings.Contains(lua.CheckString(l, 1), lua.CheckString(l, 2)))
	return 1
}

func strReplace(l *lua.State) int {
	str := lua.CheckString(l, 1)
	old := lua.CheckString(l, 2)
	newStr := lua.CheckString(l, 3)

	count := -1
	if l.Top() >= 4 {
		count = lua.CheckInteger(l, 4)
	}

	l.PushString(strings.Replace(str, old, newStr, count))
	return 1
}

func typeOf(l *lua.State) int {
	switch l.TypeOf(1) {
	case lua.TypeNil:
		l.PushString("nil")
	case lua.TypeBoolean:
		l.PushString("boolean")
	case lua.TypeNumber:
		l.PushString("number")
	case lua.TypeString:
		l.PushString("string")
	case lua.TypeTable:
		l.PushString("table")
	case lua.TypeFunction:
		l.PushString("function")
	default:
		l.PushString("unknown")
	}
	return 1
}
