package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"arcompat/errors"
)

var (
	emailRegex  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	mobileRegex = regexp.MustCompile(`^1[3-9]\d{9}$`)
)

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation, fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateStringLength 按字符数验证字符串长度，max <= 0 表示不限上限
func ValidateStringLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if length < min {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能少于%d个字符（当前%d）", fieldName, min, length))
	}
	if max > 0 && length > max {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s长度不能超过%d个字符（当前%d）", fieldName, max, length))
	}
	return nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) error {
	if email == "" {
		return errors.NewError(errors.ErrCodeValidation, "邮箱不能为空")
	}
	if !emailRegex.MatchString(email) {
		return errors.NewError(errors.ErrCodeValidation, "邮箱格式不正确")
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues))
}

// ValidateIDCard 验证 18 位（含校验码）或 15 位身份证号
func ValidateIDCard(id string) bool {
	switch len(id) {
	case 15:
		for i := 0; i < 15; i++ {
			if id[i] < '0' || id[i] > '9' {
				return false
			}
		}
		return true
	case 18:
		weights := [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}
		const checkCodes = "10X98765432"
		sum := 0
		for i := 0; i < 17; i++ {
			if id[i] < '0' || id[i] > '9' {
				return false
			}
			sum += int(id[i]-'0') * weights[i]
		}
		last := id[17]
		if last == 'x' {
			last = 'X'
		}
		return last == checkCodes[sum%11]
	}
	return false
}
