package sql

import (
	"strings"

	"arcompat/errors"
)

// IsSafeIdentifier 判断是否为安全的标识符：foo、table.column、schema.table。
// 每段首字符为 [A-Za-z_]，后续为 [A-Za-z0-9_]；仅做 ASCII 校验。
func IsSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			alpha := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !alpha {
				return false
			}
			if i > 0 && !alpha && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

// CheckIdentifier 非法标识符返回 CONFIGURATION_ERROR
func CheckIdentifier(kind, name string) error {
	if IsSafeIdentifier(name) {
		return nil
	}
	return errors.Errorf(errors.ErrCodeConfiguration, "非法的%s: %q", kind, name)
}
